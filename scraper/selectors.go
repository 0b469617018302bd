package scraper

import "strconv"

// Locators used across the page scripts.
var (
	// Login page
	LoginUserInput = ID("loginFormText")
	LoginPassInput = ID("passFormText")
	LoginSubmit    = ID("loginSubmit")
	// LoggedInMarker only appears after a successful login.
	LoggedInMarker = XPath("//a[contains(.,'物件・会社検索')]")
	LoadingOverlay = CSS(".loading")

	// Global menu
	PropertySearchMenu = XPath("//a[contains(.,'物件・会社検索')]")
	ListedSearchTile   = XPath("//div[@data-action='/atbb/nyushuSearch?from=global_menu_bukkenKensaku']")

	// Concurrent-login screen: logging the other session out opens the
	// search in a new tab.
	EntranceLogout = XPath("//button[contains(text(),'ログアウト')]")

	// Search conditions
	RentalResidentialLabel = XPath("//table//label[contains(string(), '賃貸居住用')]")
	CategoryRadios         = CSS("input[type='radio'][name='atbbShumokuDaibunrui']")
	FreeWordInput          = XPath("//input[@id='freeWordSearchSubject']")
	SearchButton           = XPath(`//input[@value="検索"]`)

	// Results and detail
	FirstDetailButton = XPath("//button[@id='shosai_0']")
	GalleryCountText  = XPath("//p[@class='box_title']//span")
	ShowAllPhotos     = XPath("//a[@class='allphoto']")
	GalleryFrame      = CSS("iframe.designCboxIframe")
)

// MemberSiteTitle is the title of the tab left behind by the entrance logout.
const MemberSiteTitle = "加盟店専用サイト"

// GalleryThumb locates the i-th (1-based) thumbnail inside GalleryFrame.
func GalleryThumb(i int) Locator {
	return XPath("//div[@class='image-list']//ul//li[" + strconv.Itoa(i) + "]")
}
