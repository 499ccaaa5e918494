package confluence

// PropertyKey is the content property holding DocFX metadata on a page
const PropertyKey = "docfx"

// Page is a Confluence content entity of type "page"
type Page struct {
	ID       string    `json:"id,omitempty"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Space    *Space    `json:"space,omitempty"`
	Body     *Body     `json:"body,omitempty"`
	Version  *Version  `json:"version,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Space identifies a Confluence space
type Space struct {
	Key string `json:"key"`
}

// Body holds page content
type Body struct {
	Storage Storage `json:"storage"`
}

// Storage is content in Confluence storage format
type Storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

// Version is the page version; updates must send the next number
type Version struct {
	Number int `json:"number"`
}

// Metadata is the expanded metadata of a page
type Metadata struct {
	Properties map[string]Property `json:"properties"`
}

// Property is a content property as returned when expanded on a page
type Property struct {
	Key   string        `json:"key,omitempty"`
	Value PropertyValue `json:"value"`
}

// PropertyValue is the value of the docfx content property
type PropertyValue struct {
	Description string          `json:"description,omitempty"`
	Content     DocFXProperties `json:"content"`
}

// DocFXProperties ties a page back to the DocFX topic it was published from
type DocFXProperties struct {
	UID  string `json:"docfx_uid"`
	Href string `json:"docfx_href"`
}

// NewPage describes a page to create
type NewPage struct {
	SpaceKey string
	Title    string
	Content  string
}

// PageList is one page of content search results
type PageList struct {
	Results []Page `json:"results"`
	Start   int    `json:"start"`
	Limit   int    `json:"limit"`
	Size    int    `json:"size"`
}

// spaceContent wraps results of the space content endpoint
type spaceContent struct {
	Page *PageList `json:"page"`
}

// DocFX returns the DocFX properties of a page whose metadata was expanded
func (p Page) DocFX() (DocFXProperties, bool) {
	if p.Metadata == nil {
		return DocFXProperties{}, false
	}
	prop, ok := p.Metadata.Properties[PropertyKey]
	if !ok {
		return DocFXProperties{}, false
	}
	return prop.Value.Content, true
}

func storageBody(content string) *Body {
	return &Body{Storage: Storage{Value: content, Representation: "storage"}}
}
