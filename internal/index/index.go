package index

// Writer is the part of the index IndexFile needs.
type Writer interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(path string) error
}

// NoteIndex is the index as seen by the note store: lookups for listing,
// titles and backlinks, plus the writes behind create, save and delete.
// Sync and the watcher work on *DB directly.
type NoteIndex interface {
	Writer
	GetNote(path string) (*NoteRow, error)
	ListNotes(q ListQuery) ([]NoteRow, int, error)
	Backlinks(target string) ([]string, error)
	Ping() error
}

var _ NoteIndex = (*DB)(nil)
