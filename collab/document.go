package collab

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

const (
	contentKey  = "content"
	metadataKey = "metadata"
	languageKey = "language"

	// DefaultLanguage is applied to rooms that have never persisted a
	// language choice.
	DefaultLanguage = "javascript"
)

// Document is the replicated text buffer plus a small metadata map for one
// room. Merging is convergent: applying the same set of updates in any order,
// any number of times, yields identical content on every replica.
//
// Document is not safe for concurrent use; the owning Room serializes access.
type Document struct {
	doc       *automerge.Doc
	observers []func(update []byte)
}

func NewDocument() *Document {
	return &Document{doc: automerge.New()}
}

// LoadDocument rebuilds a Document from a full snapshot produced by EncodeFull.
func LoadDocument(snapshot []byte) (*Document, error) {
	doc, err := automerge.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("load document snapshot: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Observe registers a callback invoked with the encoded bytes of every local
// mutation, once per mutation. Callbacks run synchronously on the mutating
// goroutine, so for a Document owned by a Room they run under the room lock.
func (d *Document) Observe(fn func(update []byte)) {
	d.observers = append(d.observers, fn)
}

// EncodeFull returns a snapshot of the complete current state, suitable for
// persistence and for initializing newly joined replicas.
func (d *Document) EncodeFull() []byte {
	return d.doc.Save()
}

// ApplyUpdate merges an incremental update (or a full snapshot) into the
// document. Safe to call with updates already known and with updates arriving
// out of causal order.
func (d *Document) ApplyUpdate(update []byte) error {
	if err := d.doc.LoadIncremental(update); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	// Advance the incremental-save cursor past the remote changes so local
	// mutations emit only their own delta.
	d.doc.SaveIncremental()
	return nil
}

// Text returns the current content of the shared buffer.
func (d *Document) Text() (string, error) {
	v, err := d.doc.Path(contentKey).Get()
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case automerge.KindVoid:
		return "", nil
	case automerge.KindText:
		return v.Text().Get()
	case automerge.KindStr:
		return v.Str(), nil
	default:
		return "", fmt.Errorf("unexpected kind %v for document content", v.Kind())
	}
}

// SetText replaces the whole buffer. Used by tests and tooling; live edits
// arrive as client-generated updates instead.
func (d *Document) SetText(s string) error {
	v, err := d.doc.Path(contentKey).Get()
	if err != nil {
		return err
	}
	if v.Kind() != automerge.KindText {
		if err := d.doc.RootMap().Set(contentKey, automerge.NewText(s)); err != nil {
			return err
		}
		d.emitLocal()
		return nil
	}
	text := v.Text()
	current, err := text.Get()
	if err != nil {
		return err
	}
	if err := text.Splice(0, len([]rune(current)), s); err != nil {
		return err
	}
	d.emitLocal()
	return nil
}

// Metadata reads a metadata key, or "" when unset.
func (d *Document) Metadata(key string) (string, error) {
	v, err := d.doc.Path(metadataKey, key).Get()
	if err != nil {
		return "", err
	}
	if v.Kind() != automerge.KindStr {
		return "", nil
	}
	return v.Str(), nil
}

// SetMetadata writes a metadata key through the replication mechanism, so
// concurrent writers converge on a single winner.
func (d *Document) SetMetadata(key, value string) error {
	if err := d.doc.Path(metadataKey, key).Set(value); err != nil {
		return err
	}
	d.emitLocal()
	return nil
}

// Language is shorthand for the language metadata entry, defaulted.
func (d *Document) Language() string {
	lang, err := d.Metadata(languageKey)
	if err != nil || lang == "" {
		return DefaultLanguage
	}
	return lang
}

func (d *Document) SetLanguage(lang string) error {
	return d.SetMetadata(languageKey, lang)
}

func (d *Document) emitLocal() {
	update := d.doc.SaveIncremental()
	if len(update) == 0 {
		return
	}
	for _, fn := range d.observers {
		fn(update)
	}
}
