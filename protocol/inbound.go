// Package protocol defines the JSON messages exchanged over the relay socket.
// Every message is a flat object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/girjesh-suryawanshi/secureshare-sub000/codes"
	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	"github.com/girjesh-suryawanshi/secureshare-sub000/models"
)

const (
	TypeRegisterFile       = "register-file"
	TypeFileData           = "file-data"
	TypeRequestFile        = "request-file"
	TypeDownloadSuccess    = "download-success"
	TypeDownloadError      = "download-error"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeIceCandidate       = "ice-candidate"
	TypeConnectionRequest  = "connection-request"
	TypeConnectionResponse = "connection-response"
	TypePing               = "ping"
)

const DefaultFileType = models.DefaultFileType

var ErrUnknownType = errors.New("unknown message type")

// Inbound is implemented by every message a client may send.
type Inbound interface {
	MessageType() string
	Validate() error
}

type envelope struct {
	Type string `json:"type"`
}

type RegisterFile struct {
	Code        string  `json:"code,omitempty"`
	FileName    *string `json:"fileName"`
	FileSize    *int64  `json:"fileSize"`
	FileType    *string `json:"fileType"`
	FileIndex   *int    `json:"fileIndex"`
	TotalFiles  *int    `json:"totalFiles"`
	TotalChunks *int    `json:"totalChunks,omitempty"`
}

// FileData is a chunk when ChunkIndex is set and a whole file otherwise.
type FileData struct {
	Code        string  `json:"code,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	FileSize    *int64  `json:"fileSize,omitempty"`
	FileType    string  `json:"fileType,omitempty"`
	FileIndex   *int    `json:"fileIndex"`
	TotalFiles  *int    `json:"totalFiles,omitempty"`
	ChunkIndex  *int    `json:"chunkIndex,omitempty"`
	TotalChunks *int    `json:"totalChunks,omitempty"`
	Data        *string `json:"data"`
	IsLastChunk bool    `json:"isLastChunk,omitempty"`
}

type RequestFile struct {
	Code string `json:"code"`
}

// DownloadAck is relayed to the sender verbatim; Raw holds the original bytes.
type DownloadAck struct {
	Type     string          `json:"type"`
	Code     string          `json:"code"`
	FileName string          `json:"fileName,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Signal carries an opaque WebRTC payload to another connection.
type Signal struct {
	Type     string          `json:"type"`
	TargetID string          `json:"targetId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type Ping struct{}

func (RegisterFile) MessageType() string  { return TypeRegisterFile }
func (FileData) MessageType() string      { return TypeFileData }
func (RequestFile) MessageType() string   { return TypeRequestFile }
func (m DownloadAck) MessageType() string { return m.Type }
func (m Signal) MessageType() string      { return m.Type }
func (Ping) MessageType() string          { return TypePing }

// Decode parses one client frame into its concrete message and validates it.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, cerr.NewValidationError("", "malformed JSON message")
	}

	var msg Inbound
	switch env.Type {
	case TypeRegisterFile:
		msg = &RegisterFile{}
	case TypeFileData:
		msg = &FileData{}
	case TypeRequestFile:
		msg = &RequestFile{}
	case TypeDownloadSuccess, TypeDownloadError:
		msg = &DownloadAck{Raw: append(json.RawMessage(nil), raw...)}
	case TypeOffer, TypeAnswer, TypeIceCandidate, TypeConnectionRequest, TypeConnectionResponse:
		msg = &Signal{}
	case TypePing:
		return Ping{}, nil
	case "":
		return nil, cerr.NewValidationError("type", "is required")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fieldError(err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func fieldError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return cerr.NewValidationError(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type))
	}
	return cerr.NewValidationError("", "malformed JSON message")
}

func (m *RegisterFile) Validate() error {
	m.Code = codes.NormalizeTransferCode(m.Code)
	if m.Code != "" && !codes.IsTransferCode(m.Code) {
		return cerr.NewValidationError("code", "must be 6 letters or digits")
	}
	if m.FileName == nil || strings.TrimSpace(*m.FileName) == "" {
		return cerr.NewValidationError("fileName", "is required")
	}
	if m.FileSize == nil || *m.FileSize < 0 {
		return cerr.NewValidationError("fileSize", "is required and must be >= 0")
	}
	if m.FileType == nil {
		return cerr.NewValidationError("fileType", "is required")
	}
	if m.FileIndex == nil || *m.FileIndex < 0 {
		return cerr.NewValidationError("fileIndex", "is required and must be >= 0")
	}
	if m.TotalFiles == nil || *m.TotalFiles < 1 {
		return cerr.NewValidationError("totalFiles", "is required and must be >= 1")
	}
	if *m.FileIndex >= *m.TotalFiles {
		return cerr.NewValidationError("fileIndex", "must be below totalFiles")
	}
	if m.TotalChunks != nil && *m.TotalChunks < 0 {
		return cerr.NewValidationError("totalChunks", "must be >= 0")
	}
	return nil
}

func (m *RegisterFile) MimeType() string {
	if m.FileType == nil || *m.FileType == "" {
		return DefaultFileType
	}
	return *m.FileType
}

// DeclaredChunks returns -1 when totalChunks was omitted.
func (m *RegisterFile) DeclaredChunks() int {
	if m.TotalChunks == nil {
		return -1
	}
	return *m.TotalChunks
}

func (m *FileData) Chunked() bool {
	return m.ChunkIndex != nil
}

func (m *FileData) Validate() error {
	m.Code = codes.NormalizeTransferCode(m.Code)
	if m.Code != "" && !codes.IsTransferCode(m.Code) {
		return cerr.NewValidationError("code", "must be 6 letters or digits")
	}
	if m.FileIndex == nil || *m.FileIndex < 0 {
		return cerr.NewValidationError("fileIndex", "is required and must be >= 0")
	}
	if m.Data == nil {
		return cerr.NewValidationError("data", "is required")
	}
	if m.Chunked() {
		if m.Code == "" {
			return cerr.NewValidationError("code", "is required for chunked uploads")
		}
		if *m.ChunkIndex < 0 {
			return cerr.NewValidationError("chunkIndex", "must be >= 0")
		}
		if m.TotalChunks != nil && *m.TotalChunks < 0 {
			return cerr.NewValidationError("totalChunks", "must be >= 0")
		}
		return nil
	}
	if m.TotalFiles != nil && *m.TotalFiles < 1 {
		return cerr.NewValidationError("totalFiles", "must be >= 1")
	}
	if m.Code != "" {
		// the registered batch supplies the name and bounds fileIndex
		return nil
	}
	if strings.TrimSpace(m.FileName) == "" {
		return cerr.NewValidationError("fileName", "is required")
	}
	if *m.FileIndex >= m.BatchSize() {
		return cerr.NewValidationError("fileIndex", "must be below totalFiles")
	}
	return nil
}

// BatchSize defaults to a single-file batch for direct uploads.
func (m *FileData) BatchSize() int {
	if m.TotalFiles == nil {
		return 1
	}
	return *m.TotalFiles
}

// DeclaredFiles returns 0 when totalFiles was omitted.
func (m *FileData) DeclaredFiles() int {
	if m.TotalFiles == nil {
		return 0
	}
	return *m.TotalFiles
}

func (m *FileData) DeclaredChunks() int {
	if m.TotalChunks == nil {
		return -1
	}
	return *m.TotalChunks
}

func (m *FileData) DeclaredSize() int64 {
	if m.FileSize == nil {
		return 0
	}
	return *m.FileSize
}

func (m *RequestFile) Validate() error {
	m.Code = codes.NormalizeTransferCode(m.Code)
	if m.Code == "" {
		return cerr.NewValidationError("code", "is required")
	}
	return nil
}

func (m *DownloadAck) Validate() error {
	m.Code = codes.NormalizeTransferCode(m.Code)
	if m.Code == "" {
		return cerr.NewValidationError("code", "is required")
	}
	return nil
}

func (m *Signal) Validate() error {
	m.TargetID = strings.ToUpper(strings.TrimSpace(m.TargetID))
	if m.TargetID == "" {
		return cerr.NewValidationError("targetId", "is required")
	}
	return nil
}

func (Ping) Validate() error { return nil }
