package document

import "time"

// DefaultLanguage is used when a document is created without a language tag.
const DefaultLanguage = "plaintext"

// Version is an immutable snapshot of document content.
type Version struct {
	Content   string    `json:"content" bson:"content"`
	EditedBy  string    `json:"editedBy" bson:"editedBy"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Person is the public profile attached to documents and chat messages in
// read responses. It is resolved from the user directory, never stored.
type Person struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Document is the persistent code document. Content always mirrors the last
// appended version except after a revert, which rewinds content without
// touching history.
type Document struct {
	ID            string    `json:"id" bson:"_id"`
	Title         string    `json:"title" bson:"title"`
	Content       string    `json:"content" bson:"content"`
	Language      string    `json:"language" bson:"language"`
	OwnerID       string    `json:"ownerId" bson:"ownerId"`
	Collaborators []string  `json:"collaborators" bson:"collaborators"`
	Versions      []Version `json:"versions" bson:"versions"`
	ShareToken    string    `json:"shareToken,omitempty" bson:"shareToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`

	CreatedBy *Person `json:"createdBy,omitempty" bson:"-"`
}

// Clone returns a deep copy so callers never alias store state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Collaborators = append([]string{}, d.Collaborators...)
	out.Versions = append([]Version{}, d.Versions...)
	if d.CreatedBy != nil {
		p := *d.CreatedBy
		out.CreatedBy = &p
	}
	return &out
}

// LastVersion returns the most recently appended version.
func (d *Document) LastVersion() (Version, bool) {
	if len(d.Versions) == 0 {
		return Version{}, false
	}
	return d.Versions[len(d.Versions)-1], true
}

// ChatMessage belongs to a document by reference only; it is stored in its
// own collection and listed by document id.
type ChatMessage struct {
	ID         string    `json:"id" bson:"_id"`
	DocumentID string    `json:"documentId" bson:"documentId"`
	User       string    `json:"user" bson:"user"`
	Message    string    `json:"message" bson:"message"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Seq        int64     `json:"-" bson:"seq"`

	Author *Person `json:"author,omitempty" bson:"-"`
}
