package scraper

// CSS selectors for the Mercado Libre listing layout. Kept in one place so a
// site redesign is a single-file change.
const (
	selProductCard     = "li.ui-search-layout__item"
	selProductTitle    = "h2.ui-search-item__title"
	selProductPrice    = "span.andes-money-amount__fraction"
	selProductOldPrice = "span.andes-money-amount--previous"
	selProductDiscount = "span.ui-search-price__discount"
	selProductSeller   = "span.ui-search-item__seller-info"
	selProductRating   = "span.ui-search-reviews__rating-number"
	selProductReviews  = "span.ui-search-reviews__amount"
	selProductLink     = "a.ui-search-item__group__element"
)
