package protocol

import (
	"encoding/base64"
	"encoding/json"

	"github.com/girjesh-suryawanshi/secureshare-sub000/models"
)

const (
	TypeConnectionID       = "connection-id"
	TypeFileRegistered     = "file-registered"
	TypeFileStored         = "file-stored"
	TypeFileReady          = "file-ready"
	TypeFileAvailable      = "file-available"
	TypeFilePending        = "file-pending"
	TypeFileNotFound       = "file-not-found"
	TypeTransferExpired    = "transfer-expired"
	TypeSenderDisconnected = "sender-disconnected"
	TypePeerNotFound       = "peer-not-found"
	TypeError              = "error"
	TypePong               = "pong"
)

// Reasons attached to error and file-not-found replies.
const (
	ReasonValidation   = "validation"
	ReasonUnknownType  = "unknown-type"
	ReasonRateLimited  = "rate-limited"
	ReasonNotOwner     = "not-owner"
	ReasonInvalidChunk = "invalid-chunk"
	ReasonTooLarge     = "payload-too-large"
	ReasonExhausted    = "code-space-exhausted"
	ReasonInternal     = "internal"
	ReasonUnknownCode  = "unknown-code"
	ReasonUnknownFile  = "unknown-file"
)

type ConnectionID struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type FileRegistered struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	FileIndex int    `json:"fileIndex"`
}

type FileStored struct {
	Type           string `json:"type"`
	Code           string `json:"code"`
	FileIndex      int    `json:"fileIndex"`
	ChunkIndex     *int   `json:"chunkIndex,omitempty"`
	ReceivedChunks int    `json:"receivedChunks"`
	TotalChunks    int    `json:"totalChunks"`
	FileComplete   bool   `json:"fileComplete"`
	BatchComplete  bool   `json:"batchComplete"`
}

// FileInfo is used for file-ready and file-available. Data is only set when
// the batch has been handed over.
type FileInfo struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	FileType   string `json:"fileType"`
	FileIndex  int    `json:"fileIndex"`
	TotalFiles int    `json:"totalFiles"`
	Data       string `json:"data,omitempty"`
}

type FilePending struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	ReadyFiles int    `json:"readyFiles"`
	TotalFiles int    `json:"totalFiles"`
}

type FileNotFound struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	FileIndex *int   `json:"fileIndex,omitempty"`
	Reason    string `json:"reason"`
}

// Notice covers transfer-expired and sender-disconnected.
type Notice struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PeerNotFound struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
}

type RelayedSignal struct {
	Type   string          `json:"type"`
	FromID string          `json:"fromId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type Pong struct {
	Type string `json:"type"`
}

func NewConnectionID(id string) ConnectionID {
	return ConnectionID{Type: TypeConnectionID, ConnectionID: id}
}

func NewFileRegistered(code string, fileIndex int) FileRegistered {
	return FileRegistered{Type: TypeFileRegistered, Code: code, FileIndex: fileIndex}
}

func NewFileStored(res models.ChunkStoreResult, chunkIndex *int) FileStored {
	return FileStored{
		Type:           TypeFileStored,
		Code:           res.Code,
		FileIndex:      res.FileIndex,
		ChunkIndex:     chunkIndex,
		ReceivedChunks: res.ReceivedChunks,
		TotalChunks:    res.TotalChunks,
		FileComplete:   res.FileComplete,
		BatchComplete:  res.BatchComplete,
	}
}

func fileInfo(kind string, rec models.TransferRecord, f models.FileEntry) FileInfo {
	return FileInfo{
		Type:       kind,
		Code:       rec.Code,
		FileName:   f.FileName,
		FileSize:   f.FileSize,
		FileType:   f.FileType,
		FileIndex:  f.FileIndex,
		TotalFiles: rec.TotalFiles,
	}
}

// NewFileReady announces a completed file without its bytes.
func NewFileReady(rec models.TransferRecord, f models.FileEntry) FileInfo {
	return fileInfo(TypeFileReady, rec, f)
}

// NewFileDelivery carries the file bytes, base64 encoded.
func NewFileDelivery(rec models.TransferRecord, f models.FileEntry) FileInfo {
	msg := fileInfo(TypeFileReady, rec, f)
	msg.Data = base64.StdEncoding.EncodeToString(f.Data)
	return msg
}

func NewFileAvailable(rec models.TransferRecord, f models.FileEntry) FileInfo {
	return fileInfo(TypeFileAvailable, rec, f)
}

func NewFilePending(rec models.TransferRecord) FilePending {
	return FilePending{
		Type:       TypeFilePending,
		Code:       rec.Code,
		ReadyFiles: len(rec.CompleteFiles()),
		TotalFiles: rec.TotalFiles,
	}
}

func NewFileNotFound(code, reason string) FileNotFound {
	return FileNotFound{Type: TypeFileNotFound, Code: code, Reason: reason}
}

func NewUnknownFile(code string, fileIndex int) FileNotFound {
	return FileNotFound{Type: TypeFileNotFound, Code: code, FileIndex: &fileIndex, Reason: ReasonUnknownFile}
}

func NewTransferExpired(code string) Notice {
	return Notice{Type: TypeTransferExpired, Code: code, Message: "this transfer code has expired"}
}

func NewSenderDisconnected(code string) Notice {
	return Notice{Type: TypeSenderDisconnected, Code: code, Message: "the sender disconnected before the transfer finished"}
}

func NewPeerNotFound(targetID string) PeerNotFound {
	return PeerNotFound{Type: TypePeerNotFound, TargetID: targetID}
}

func NewRelayedSignal(kind, fromID string, data json.RawMessage) RelayedSignal {
	return RelayedSignal{Type: kind, FromID: fromID, Data: data}
}

func NewError(reason, message string) Error {
	return Error{Type: TypeError, Message: message, Reason: reason}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}
