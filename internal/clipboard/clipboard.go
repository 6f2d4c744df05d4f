package clipboard

import "github.com/atotto/clipboard"

// Clipboard is the boundary to the system clipboard. Writes are
// fire-and-forget from the caller's point of view; reads exist only
// so clearing can check the content was not replaced externally.
type Clipboard interface {
	Copy(text string) error
	Paste() (string, error)
}

// System talks to the real OS clipboard.
type System struct{}

func (System) Copy(text string) error {
	return clipboard.WriteAll(text)
}

func (System) Paste() (string, error) {
	return clipboard.ReadAll()
}
