package models

import "time"

const DefaultFileType = "application/octet-stream"

// FileEntry is a read-only view of one file in a batch.
type FileEntry struct {
	FileName       string
	FileSize       int64
	FileType       string
	FileIndex      int
	TotalChunks    int // -1 until declared
	ReceivedChunks int
	Complete       bool
	Data           []byte // assembled payload, nil until Complete; never mutated
}

// TransferRecord is a snapshot of a batch registered under a transfer code.
type TransferRecord struct {
	Code              string
	TotalFiles        int
	CreatedAt         time.Time
	OwnerConnectionID string
	Files             []FileEntry // ordered by FileIndex
}

// Complete reports whether every declared file has been registered and assembled.
func (r TransferRecord) Complete() bool {
	if len(r.Files) != r.TotalFiles {
		return false
	}
	for _, f := range r.Files {
		if !f.Complete {
			return false
		}
	}
	return true
}

func (r TransferRecord) CompleteFiles() []FileEntry {
	out := make([]FileEntry, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Complete {
			out = append(out, f)
		}
	}
	return out
}

// ChunkStoreResult is returned by every write of file bytes.
type ChunkStoreResult struct {
	Code           string
	FileIndex      int
	ReceivedChunks int
	TotalChunks    int
	FileComplete   bool
	BatchComplete  bool
	FileBytes      int64 // assembled size once FileComplete
}

// Eviction names a record removed by the expiry sweep.
type Eviction struct {
	Code              string
	OwnerConnectionID string
}
