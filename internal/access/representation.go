package access

// Representation is the form of an image a caller asks for. The set of
// implementations is closed: Original, Thumbnail and TemporaryLink.
type Representation interface {
	representation()
}

type Original struct{}

type Thumbnail struct {
	Height int
}

type TemporaryLink struct{}

func (Original) representation()      {}
func (Thumbnail) representation()     {}
func (TemporaryLink) representation() {}
