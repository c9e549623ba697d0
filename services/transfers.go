package services

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/models"
	"github.com/girjesh-suryawanshi/secureshare-sub000/protocol"
	"github.com/girjesh-suryawanshi/secureshare-sub000/store"
)

type TransferService interface {
	Register(ownerID string, msg *protocol.RegisterFile) (protocol.FileRegistered, error)
	Upload(ownerID string, msg *protocol.FileData) (protocol.FileStored, error)
	Request(receiverID, code string) ([]any, error)
	Acknowledge(receiverID string, ack *protocol.DownloadAck) error
	SweepExpired(now time.Time) int
	ReleaseOwner(ownerID string) []string
	ForgetReceiver(receiverID string)
	ActiveTransfers() int
}

type TransferServiceImpl struct {
	notifier

	transfers store.TransferStore
	delivery  *Delivery
	pickupTTL time.Duration
}

// NewTransferServiceImpl wires the registry to the connection directory.
// pickupTTL bounds how long a consumed code still routes download acks to its sender.
func NewTransferServiceImpl(
	transfers store.TransferStore,
	conns store.ConnectionStore,
	delivery *Delivery,
	pickupTTL time.Duration,
	l logger.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		notifier:  notifier{conns: conns, logger: l},
		transfers: transfers,
		delivery:  delivery,
		pickupTTL: pickupTTL,
	}
}

func (svc *TransferServiceImpl) ActiveTransfers() int {
	return svc.transfers.Count()
}

func (svc *TransferServiceImpl) Register(ownerID string, msg *protocol.RegisterFile) (protocol.FileRegistered, error) {
	code, err := svc.transfers.RegisterFile(store.FileRegistration{
		Code:              msg.Code,
		FileName:          *msg.FileName,
		FileSize:          *msg.FileSize,
		FileType:          msg.MimeType(),
		FileIndex:         *msg.FileIndex,
		TotalFiles:        *msg.TotalFiles,
		TotalChunks:       msg.DeclaredChunks(),
		OwnerConnectionID: ownerID,
	})
	if err != nil {
		return protocol.FileRegistered{}, err
	}

	svc.logger.Info("file registered",
		"code", code,
		"file_index", *msg.FileIndex,
		"total_files", *msg.TotalFiles,
		"size", humanize.Bytes(uint64(*msg.FileSize)),
		"connection_id", ownerID,
	)

	// empty files complete on registration
	if rec, err := svc.transfers.GetBatch(code); err == nil && rec.Complete() {
		svc.announce(rec)
	}
	return protocol.NewFileRegistered(code, *msg.FileIndex), nil
}

func (svc *TransferServiceImpl) Upload(ownerID string, msg *protocol.FileData) (protocol.FileStored, error) {
	var (
		res models.ChunkStoreResult
		err error
	)
	if msg.Chunked() {
		res, err = svc.transfers.StoreChunk(store.ChunkUpload{
			Code:              msg.Code,
			FileIndex:         *msg.FileIndex,
			ChunkIndex:        *msg.ChunkIndex,
			TotalChunks:       msg.DeclaredChunks(),
			Data:              *msg.Data,
			IsLastChunk:       msg.IsLastChunk,
			OwnerConnectionID: ownerID,
		})
	} else {
		res, err = svc.transfers.StoreDirect(store.DirectUpload{
			Code:              msg.Code,
			FileName:          msg.FileName,
			FileSize:          msg.DeclaredSize(),
			FileType:          msg.FileType,
			FileIndex:         *msg.FileIndex,
			TotalFiles:        msg.DeclaredFiles(),
			Data:              *msg.Data,
			OwnerConnectionID: ownerID,
		})
	}
	if err != nil {
		return protocol.FileStored{}, err
	}

	if res.FileComplete {
		svc.logger.Debug("file assembled",
			"code", res.Code,
			"file_index", res.FileIndex,
			"chunks", res.TotalChunks,
			"size", humanize.Bytes(uint64(res.FileBytes)),
		)
	}
	if res.BatchComplete {
		if rec, err := svc.transfers.GetBatch(res.Code); err == nil {
			svc.announce(rec)
		}
	}
	return protocol.NewFileStored(res, msg.ChunkIndex), nil
}

// announce tells a parked receiver, once, that every file of rec is ready.
func (svc *TransferServiceImpl) announce(rec models.TransferRecord) {
	receiverID, ok := svc.delivery.Take(rec.Code)
	if !ok {
		return
	}
	for _, f := range rec.Files {
		svc.push(receiverID, protocol.NewFileAvailable(rec, f))
	}
	svc.logger.Info("batch ready, receiver notified", "code", rec.Code, "connection_id", receiverID)
}

// Request answers a receiver asking for code. An incomplete batch yields the
// files ready so far plus file-pending and parks the receiver; a complete
// batch is consumed and every file is returned with its bytes.
func (svc *TransferServiceImpl) Request(receiverID, code string) ([]any, error) {
	rec, err := svc.transfers.GetBatch(code)
	if err != nil {
		return nil, err
	}

	if !rec.Complete() {
		svc.delivery.Park(code, receiverID)
		// completion may have landed between the snapshot and parking
		rec, err = svc.transfers.GetBatch(code)
		if err != nil {
			svc.delivery.Unpark(code, receiverID)
			return nil, err
		}
		if !rec.Complete() {
			ready := rec.CompleteFiles()
			replies := make([]any, 0, len(ready)+1)
			for _, f := range ready {
				replies = append(replies, protocol.NewFileReady(rec, f))
			}
			replies = append(replies, protocol.NewFilePending(rec))
			return replies, nil
		}
	}

	rec, err = svc.transfers.Consume(code)
	if err != nil {
		svc.delivery.Unpark(code, receiverID)
		return nil, err
	}
	if waiter, ok := svc.delivery.Take(code); ok && waiter != receiverID {
		svc.push(waiter, protocol.NewFileNotFound(code, protocol.ReasonUnknownCode))
	}
	svc.delivery.RecordPickup(code, rec.OwnerConnectionID, receiverID)

	var total int64
	replies := make([]any, 0, len(rec.Files))
	for _, f := range rec.Files {
		replies = append(replies, protocol.NewFileDelivery(rec, f))
		total += int64(len(f.Data))
	}
	svc.logger.Info("batch handed over",
		"code", code,
		"files", len(rec.Files),
		"size", humanize.Bytes(uint64(total)),
		"connection_id", receiverID,
	)
	return replies, nil
}

// Acknowledge relays a download result to the sender of the code. Only the
// receiver that picked the batch up may report on it.
func (svc *TransferServiceImpl) Acknowledge(receiverID string, ack *protocol.DownloadAck) error {
	owner, ok := svc.delivery.PickupOwner(ack.Code, receiverID)
	if !ok {
		return fmt.Errorf("%w: no pickup of %s by %s", cerr.ErrUnknownCode, ack.Code, receiverID)
	}
	if !svc.push(owner, ack.Raw) {
		return cerr.ErrConnectionNotFound
	}
	return nil
}

// SweepExpired evicts records past their lifetime, tells the owner and any
// parked receiver, and forgets stale pickup receipts.
func (svc *TransferServiceImpl) SweepExpired(now time.Time) int {
	evicted := svc.transfers.EvictExpired(now)
	for _, ev := range evicted {
		notice := protocol.NewTransferExpired(ev.Code)
		svc.push(ev.OwnerConnectionID, notice)
		if receiverID, ok := svc.delivery.Take(ev.Code); ok {
			svc.push(receiverID, notice)
		}
	}
	pruned := svc.delivery.PrunePickups(now, svc.pickupTTL)

	if len(evicted) > 0 || pruned > 0 {
		svc.logger.Info("expired transfers swept", "evicted", len(evicted), "pickups_pruned", pruned)
	}
	return len(evicted)
}

// ReleaseOwner drops every record owned by ownerID and tells waiting receivers.
func (svc *TransferServiceImpl) ReleaseOwner(ownerID string) []string {
	released := svc.transfers.ReleaseByOwner(ownerID)
	for _, code := range released {
		if receiverID, ok := svc.delivery.Take(code); ok {
			svc.push(receiverID, protocol.NewSenderDisconnected(code))
		}
	}
	svc.delivery.DropOwner(ownerID)

	if len(released) > 0 {
		svc.logger.Info("transfers released", "connection_id", ownerID, "codes", released)
	}
	return released
}

func (svc *TransferServiceImpl) ForgetReceiver(receiverID string) {
	svc.delivery.DropReceiver(receiverID)
}
