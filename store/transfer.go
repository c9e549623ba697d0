package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/girjesh-suryawanshi/secureshare-sub000/codes"
	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	"github.com/girjesh-suryawanshi/secureshare-sub000/health"
	"github.com/girjesh-suryawanshi/secureshare-sub000/models"
)

// FileRegistration declares one file of a batch. An empty Code asks the
// store to issue one. TotalChunks < 0 means not declared yet.
type FileRegistration struct {
	Code              string
	FileName          string
	FileSize          int64
	FileType          string
	FileIndex         int
	TotalFiles        int
	TotalChunks       int
	OwnerConnectionID string
}

// ChunkUpload carries one base64 chunk. TotalChunks < 0 falls back to the
// value declared at registration.
type ChunkUpload struct {
	Code              string
	FileIndex         int
	ChunkIndex        int
	TotalChunks       int
	Data              string
	IsLastChunk       bool
	OwnerConnectionID string
}

// DirectUpload stores a whole file in one message, skipping chunking.
// TotalFiles == 0 keeps the registered batch size, or 1 for a new batch.
// An empty FileName or FileType keeps what was registered for the slot.
type DirectUpload struct {
	Code              string
	FileName          string
	FileSize          int64
	FileType          string
	FileIndex         int
	TotalFiles        int
	Data              string
	OwnerConnectionID string
}

type TransferStore interface {
	RegisterFile(reg FileRegistration) (string, error)
	StoreChunk(up ChunkUpload) (models.ChunkStoreResult, error)
	StoreDirect(up DirectUpload) (models.ChunkStoreResult, error)
	GetBatch(code string) (models.TransferRecord, error)
	Consume(code string) (models.TransferRecord, error)
	EvictExpired(now time.Time) []models.Eviction
	ReleaseByOwner(connectionID string) []string
	Count() int

	health.ReadinessCheck
}

type fileEntry struct {
	name        string
	size        int64
	mimeType    string
	index       int
	totalChunks int
	chunks      map[int][]byte
	assembled   []byte
	complete    bool
}

func (f *fileEntry) bufferedBytes() int64 {
	if f.complete {
		return int64(len(f.assembled))
	}
	var n int64
	for _, c := range f.chunks {
		n += int64(len(c))
	}
	return n
}

func (f *fileEntry) assemble() {
	var total int
	for _, c := range f.chunks {
		total += len(c)
	}
	buf := make([]byte, 0, total)
	for i := 0; i < f.totalChunks; i++ {
		buf = append(buf, f.chunks[i]...)
	}
	f.assembled = buf
	f.chunks = nil
	f.complete = true
}

type transferRecord struct {
	code       string
	totalFiles int
	createdAt  time.Time
	owner      string
	files      map[int]*fileEntry
	bytes      int64
}

func (r *transferRecord) complete() bool {
	if len(r.files) != r.totalFiles {
		return false
	}
	for _, f := range r.files {
		if !f.complete {
			return false
		}
	}
	return true
}

type tombstone struct {
	cause error
	at    time.Time
}

type TransferOption func(*MemoryTransferStore)

func WithClock(now Clock) TransferOption {
	return func(s *MemoryTransferStore) { s.now = now }
}

func WithCodeGenerator(gen codes.Generator) TransferOption {
	return func(s *MemoryTransferStore) { s.generate = gen }
}

func WithCodeAttempts(n int) TransferOption {
	return func(s *MemoryTransferStore) { s.attempts = n }
}

// WithMaxBatchBytes caps the decoded bytes held for one code. Zero disables the cap.
func WithMaxBatchBytes(n int64) TransferOption {
	return func(s *MemoryTransferStore) { s.maxBatchBytes = n }
}

func WithTombstoneTTL(d time.Duration) TransferOption {
	return func(s *MemoryTransferStore) { s.tombstoneTTL = d }
}

// MemoryTransferStore is the registry of staged batches. One mutex serializes
// every mutation; GetBatch shares a read lock.
type MemoryTransferStore struct {
	mu         sync.RWMutex
	records    map[string]*transferRecord
	tombstones map[string]tombstone

	ttl           time.Duration
	tombstoneTTL  time.Duration
	maxBatchBytes int64
	attempts      int
	generate      codes.Generator
	now           Clock
}

func NewMemoryTransferStore(ttl time.Duration, opts ...TransferOption) *MemoryTransferStore {
	s := &MemoryTransferStore{
		records:      make(map[string]*transferRecord),
		tombstones:   make(map[string]tombstone),
		ttl:          ttl,
		tombstoneTTL: 10 * time.Minute,
		attempts:     defaultCodeAttempts,
		generate:     codes.NewTransferCode,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryTransferStore) IsReady(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryTransferStore) Name() string {
	return "TransferStore[memory]"
}

func (s *MemoryTransferStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func validateBatchPosition(fileIndex, totalFiles int) error {
	if totalFiles < 1 {
		return cerr.NewValidationError("totalFiles", "must be at least 1")
	}
	if fileIndex < 0 {
		return cerr.NewValidationError("fileIndex", "must not be negative")
	}
	if fileIndex >= totalFiles {
		return cerr.NewValidationError("fileIndex", fmt.Sprintf("must be below totalFiles (%d)", totalFiles))
	}
	return nil
}

func (s *MemoryTransferStore) RegisterFile(reg FileRegistration) (string, error) {
	if reg.FileName == "" {
		return "", cerr.NewValidationError("fileName", "is required")
	}
	if reg.FileSize < 0 {
		return "", cerr.NewValidationError("fileSize", "must not be negative")
	}
	if err := validateBatchPosition(reg.FileIndex, reg.TotalFiles); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.resolveForWriteLocked(reg.Code, reg.TotalFiles, reg.OwnerConnectionID)
	if err != nil {
		return "", err
	}
	if reg.FileIndex >= rec.totalFiles {
		return "", cerr.NewValidationError("fileIndex", fmt.Sprintf("must be below totalFiles (%d)", rec.totalFiles))
	}

	entry := &fileEntry{
		name:        reg.FileName,
		size:        reg.FileSize,
		mimeType:    reg.FileType,
		index:       reg.FileIndex,
		totalChunks: reg.TotalChunks,
		chunks:      make(map[int][]byte),
	}
	if reg.TotalChunks == 0 || (reg.TotalChunks < 0 && reg.FileSize == 0) {
		entry.totalChunks = 0
		entry.chunks = nil
		entry.assembled = []byte{}
		entry.complete = true
	}

	s.replaceEntryLocked(rec, entry)
	return rec.code, nil
}

func (s *MemoryTransferStore) StoreChunk(up ChunkUpload) (models.ChunkStoreResult, error) {
	if up.ChunkIndex < 0 {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: chunk index %d is negative", cerr.ErrInvalidChunk, up.ChunkIndex)
	}
	data, err := decodePayload(up.Data)
	if err != nil {
		return models.ChunkStoreResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(up.Code)
	if err != nil {
		return models.ChunkStoreResult{}, err
	}
	if rec.owner != "" && up.OwnerConnectionID != rec.owner {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: %s", cerr.ErrNotOwner, rec.code)
	}
	entry, ok := rec.files[up.FileIndex]
	if !ok {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: file %d of %s", cerr.ErrUnknownFile, up.FileIndex, rec.code)
	}
	if entry.complete {
		// retransmit after assembly: acknowledge without touching the payload
		return resultFor(rec, entry), nil
	}

	if up.TotalChunks >= 0 {
		switch {
		case entry.totalChunks < 0:
			entry.totalChunks = up.TotalChunks
		case entry.totalChunks != up.TotalChunks:
			return models.ChunkStoreResult{}, fmt.Errorf("%w: total chunks %d does not match declared %d",
				cerr.ErrInvalidChunk, up.TotalChunks, entry.totalChunks)
		}
	}
	if entry.totalChunks < 0 {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: total chunks not declared", cerr.ErrInvalidChunk)
	}
	if entry.totalChunks == 0 {
		entry.chunks = nil
		entry.assembled = []byte{}
		entry.complete = true
		return resultFor(rec, entry), nil
	}
	if up.ChunkIndex >= entry.totalChunks {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: chunk index %d out of range [0,%d)",
			cerr.ErrInvalidChunk, up.ChunkIndex, entry.totalChunks)
	}

	delta := int64(len(data)) - int64(len(entry.chunks[up.ChunkIndex]))
	if s.maxBatchBytes > 0 && rec.bytes+delta > s.maxBatchBytes {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: limit is %d bytes", cerr.ErrPayloadTooLarge, s.maxBatchBytes)
	}
	entry.chunks[up.ChunkIndex] = data
	rec.bytes += delta

	if len(entry.chunks) == entry.totalChunks {
		entry.assemble()
	}
	return resultFor(rec, entry), nil
}

func (s *MemoryTransferStore) StoreDirect(up DirectUpload) (models.ChunkStoreResult, error) {
	if up.FileIndex < 0 {
		return models.ChunkStoreResult{}, cerr.NewValidationError("fileIndex", "must not be negative")
	}
	totalFiles := up.TotalFiles
	if totalFiles == 0 {
		totalFiles = 1
	}
	if up.TotalFiles != 0 {
		if err := validateBatchPosition(up.FileIndex, totalFiles); err != nil {
			return models.ChunkStoreResult{}, err
		}
	}
	data, err := decodePayload(up.Data)
	if err != nil {
		return models.ChunkStoreResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[up.Code]; !ok {
		if up.FileName == "" {
			return models.ChunkStoreResult{}, cerr.NewValidationError("fileName", "is required")
		}
		if err := validateBatchPosition(up.FileIndex, totalFiles); err != nil {
			return models.ChunkStoreResult{}, err
		}
	}
	rec, err := s.resolveForWriteLocked(up.Code, totalFiles, up.OwnerConnectionID)
	if err != nil {
		return models.ChunkStoreResult{}, err
	}
	if up.FileIndex >= rec.totalFiles {
		return models.ChunkStoreResult{}, cerr.NewValidationError("fileIndex",
			fmt.Sprintf("must be below totalFiles (%d)", rec.totalFiles))
	}

	name, mimeType := up.FileName, up.FileType
	var previous int64
	if old, ok := rec.files[up.FileIndex]; ok {
		previous = old.bufferedBytes()
		if name == "" {
			name = old.name
		}
		if mimeType == "" {
			mimeType = old.mimeType
		}
	}
	if name == "" {
		return models.ChunkStoreResult{}, cerr.NewValidationError("fileName", "is required")
	}
	if mimeType == "" {
		mimeType = models.DefaultFileType
	}
	if s.maxBatchBytes > 0 && rec.bytes-previous+int64(len(data)) > s.maxBatchBytes {
		return models.ChunkStoreResult{}, fmt.Errorf("%w: limit is %d bytes", cerr.ErrPayloadTooLarge, s.maxBatchBytes)
	}

	size := up.FileSize
	if size <= 0 {
		size = int64(len(data))
	}
	entry := &fileEntry{
		name:        name,
		size:        size,
		mimeType:    mimeType,
		index:       up.FileIndex,
		totalChunks: 1,
		assembled:   data,
		complete:    true,
	}
	s.replaceEntryLocked(rec, entry)
	return resultFor(rec, entry), nil
}

func (s *MemoryTransferStore) GetBatch(code string) (models.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookupLocked(code)
	if err != nil {
		return models.TransferRecord{}, err
	}
	return snapshot(rec), nil
}

// Consume returns the record and deletes it in one critical section, so
// exactly one of any number of concurrent callers wins.
func (s *MemoryTransferStore) Consume(code string) (models.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(code)
	if err != nil {
		// an expired record stays until EvictExpired so its owner hears about it
		return models.TransferRecord{}, err
	}
	delete(s.records, rec.code)
	return snapshot(rec), nil
}

func (s *MemoryTransferStore) EvictExpired(now time.Time) []models.Eviction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []models.Eviction
	for code, rec := range s.records {
		if now.Sub(rec.createdAt) > s.ttl {
			evicted = append(evicted, models.Eviction{Code: code, OwnerConnectionID: rec.owner})
			delete(s.records, code)
			s.tombstones[code] = tombstone{cause: cerr.ErrTransferExpired, at: now}
		}
	}
	for code, t := range s.tombstones {
		if now.Sub(t.at) > s.tombstoneTTL {
			delete(s.tombstones, code)
		}
	}

	sort.Slice(evicted, func(i, j int) bool { return evicted[i].Code < evicted[j].Code })
	return evicted
}

func (s *MemoryTransferStore) ReleaseByOwner(connectionID string) []string {
	if connectionID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var released []string
	for code, rec := range s.records {
		if rec.owner == connectionID {
			released = append(released, code)
			s.buryLocked(code, cerr.ErrSenderDisconnected)
		}
	}
	sort.Strings(released)
	return released
}

// lookupLocked returns the live record for code. For an expired but unswept
// record it returns both the record and ErrTransferExpired.
func (s *MemoryTransferStore) lookupLocked(code string) (*transferRecord, error) {
	now := s.now()
	if rec, ok := s.records[code]; ok {
		if now.Sub(rec.createdAt) > s.ttl {
			return rec, fmt.Errorf("%w: %s", cerr.ErrTransferExpired, code)
		}
		return rec, nil
	}
	if t, ok := s.tombstones[code]; ok && now.Sub(t.at) <= s.tombstoneTTL {
		return nil, fmt.Errorf("%w: %s", t.cause, code)
	}
	return nil, fmt.Errorf("%w: %s", cerr.ErrUnknownCode, code)
}

// resolveForWriteLocked finds or creates the record a sender writes into.
// A client-supplied code that is expired or still tombstoned is refused.
func (s *MemoryTransferStore) resolveForWriteLocked(code string, totalFiles int, owner string) (*transferRecord, error) {
	now := s.now()

	if code == "" {
		issued, err := codes.Issue(s.generate, s.takenLocked, s.attempts)
		if err != nil {
			return nil, err
		}
		return s.createLocked(issued, totalFiles, owner, now), nil
	}

	if rec, ok := s.records[code]; ok {
		if now.Sub(rec.createdAt) > s.ttl {
			return nil, fmt.Errorf("%w: %s", cerr.ErrTransferExpired, code)
		}
		if rec.owner != "" && owner != "" && rec.owner != owner {
			return nil, fmt.Errorf("%w: %s", cerr.ErrNotOwner, code)
		}
		return rec, nil
	}
	if t, ok := s.tombstones[code]; ok {
		if now.Sub(t.at) <= s.tombstoneTTL {
			return nil, fmt.Errorf("%w: %s", t.cause, code)
		}
		delete(s.tombstones, code)
	}
	return s.createLocked(code, totalFiles, owner, now), nil
}

func (s *MemoryTransferStore) createLocked(code string, totalFiles int, owner string, now time.Time) *transferRecord {
	rec := &transferRecord{
		code:       code,
		totalFiles: totalFiles,
		createdAt:  now,
		owner:      owner,
		files:      make(map[int]*fileEntry),
	}
	s.records[code] = rec
	return rec
}

func (s *MemoryTransferStore) replaceEntryLocked(rec *transferRecord, entry *fileEntry) {
	if old, ok := rec.files[entry.index]; ok {
		rec.bytes -= old.bufferedBytes()
	}
	rec.files[entry.index] = entry
	rec.bytes += entry.bufferedBytes()
}

func (s *MemoryTransferStore) buryLocked(code string, cause error) {
	delete(s.records, code)
	s.tombstones[code] = tombstone{cause: cause, at: s.now()}
}

func (s *MemoryTransferStore) takenLocked(code string) bool {
	if _, ok := s.records[code]; ok {
		return true
	}
	_, ok := s.tombstones[code]
	return ok
}

func resultFor(rec *transferRecord, entry *fileEntry) models.ChunkStoreResult {
	res := models.ChunkStoreResult{
		Code:           rec.code,
		FileIndex:      entry.index,
		ReceivedChunks: len(entry.chunks),
		TotalChunks:    entry.totalChunks,
		FileComplete:   entry.complete,
		BatchComplete:  rec.complete(),
	}
	if entry.complete {
		res.ReceivedChunks = entry.totalChunks
		res.FileBytes = int64(len(entry.assembled))
	}
	return res
}

func snapshot(rec *transferRecord) models.TransferRecord {
	out := models.TransferRecord{
		Code:              rec.code,
		TotalFiles:        rec.totalFiles,
		CreatedAt:         rec.createdAt,
		OwnerConnectionID: rec.owner,
		Files:             make([]models.FileEntry, 0, len(rec.files)),
	}
	for _, f := range rec.files {
		entry := models.FileEntry{
			FileName:       f.name,
			FileSize:       f.size,
			FileType:       f.mimeType,
			FileIndex:      f.index,
			TotalChunks:    f.totalChunks,
			ReceivedChunks: len(f.chunks),
			Complete:       f.complete,
		}
		if f.complete {
			entry.ReceivedChunks = f.totalChunks
			entry.Data = f.assembled
		}
		out.Files = append(out.Files, entry)
	}
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].FileIndex < out.Files[j].FileIndex })
	return out
}
