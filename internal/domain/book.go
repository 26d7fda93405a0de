// Package domain contains the library entities: books, the authors and tags
// attached to them, and the junction rows that link them.
package domain

// Book is one library entry as stored. Authors and tags live in junction
// collections; see HydratedBook for the joined form.
type Book struct {
	ID         int64    `json:"id,omitempty"`
	Title      string   `json:"title"`
	Publisher  string   `json:"publisher"`
	Release    string   `json:"release"`
	Cover      *Payload `json:"cover,omitempty"`
	Attachment *Payload `json:"attachment,omitempty"`
	// Progress is an opaque reading position (page number, EPUB CFI, ...).
	Progress string `json:"progress"`
}

// InitialProgress is the progress of a newly created book.
const InitialProgress = "0"

// Type derives the document kind from the attachment. It is never stored.
func (b *Book) Type() DocumentType {
	return DetectDocumentType(b.Attachment)
}

// HydratedBook is a book joined with its authors and tags.
type HydratedBook struct {
	Book
	Type    DocumentType `json:"type,omitempty"`
	Authors []Author     `json:"authors"`
	Tags    []Tag        `json:"tags"`
}

// AuthorLabels returns the labels of the book's authors in link order.
func (h *HydratedBook) AuthorLabels() []string {
	out := make([]string, len(h.Authors))
	for i, a := range h.Authors {
		out[i] = a.Label
	}
	return out
}

// TagLabels returns the labels of the book's tags in link order.
func (h *HydratedBook) TagLabels() []string {
	out := make([]string, len(h.Tags))
	for i, t := range h.Tags {
		out[i] = t.Label
	}
	return out
}
