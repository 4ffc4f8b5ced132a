package domain

import (
	"cmp"
	"fmt"
	"time"
)

// MessageKey identifies a message file by its folder and file name
type MessageKey struct {
	Folder string
	Name   string
}

func NewMessageKey(folder, name string) MessageKey {
	return MessageKey{Folder: folder, Name: name}
}

// Compare orders keys by folder, then by name
func (k MessageKey) Compare(other MessageKey) int {
	if c := cmp.Compare(k.Folder, other.Folder); c != 0 {
		return c
	}
	return cmp.Compare(k.Name, other.Name)
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%s/%s", k.Folder, k.Name)
}

type Message struct {
	ContentType string
	Length      int
	Elapsed     time.Duration
}
