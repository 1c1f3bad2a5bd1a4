package catalog

// Product is the search result returned by the catalog's product lookup.
type Product struct {
	Items []Item `json:"items"`
}

// Item is one catalog product with its media gallery.
type Item struct {
	Name                string       `json:"name"`
	SKU                 string       `json:"sku"`
	MediaGalleryEntries []MediaEntry `json:"media_gallery_entries"`
}

// MediaEntry describes one product image, its gallery position and role tags.
type MediaEntry struct {
	ID       int64    `json:"id"`
	Position int      `json:"position"`
	Types    []string `json:"types"`
}

// EntryAtPosition returns the media entry occupying the given gallery
// position, or nil when the slot is free.
func (i Item) EntryAtPosition(position int) *MediaEntry {
	for idx := range i.MediaGalleryEntries {
		if i.MediaGalleryEntries[idx].Position == position {
			return &i.MediaGalleryEntries[idx]
		}
	}
	return nil
}

// UploadInput carries everything the media upload endpoint needs; Image is
// the base64-encoded file content.
type UploadInput struct {
	SKU      string
	Name     string
	Position int
	Image    string
}
