package services

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/protocol"
	"github.com/girjesh-suryawanshi/secureshare-sub000/store"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakePeer struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
}

func (p *fakePeer) Send(msg any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.msgs = append(p.msgs, msg)
	return true
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, typeOf(m))
	}
	return out
}

func (p *fakePeer) last() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		return nil
	}
	return p.msgs[len(p.msgs)-1]
}

func typeOf(msg any) string {
	raw, err := json.Marshal(msg)
	if err != nil {
		return ""
	}
	var env struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &env)
	return env.Type
}

type harness struct {
	clock     *fakeClock
	transfers *TransferServiceImpl
	sessions  *SessionServiceImpl
	signaling *SignalingServiceImpl
}

const testTTL = time.Hour

func newHarness(t *testing.T, code string) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := logger.NewNopLogger()

	transferStore := store.NewMemoryTransferStore(testTTL,
		store.WithClock(clock.Now),
		store.WithCodeGenerator(func() string { return code }),
	)
	conns := store.NewMemoryConnectionStore(store.WithConnectionClock(clock.Now))
	transfers := NewTransferServiceImpl(transferStore, conns, NewDelivery(clock.Now), 10*time.Minute, l)

	return &harness{
		clock:     clock,
		transfers: transfers,
		sessions:  NewSessionServiceImpl(conns, transfers, time.Minute, l),
		signaling: NewSignalingServiceImpl(conns, l),
	}
}

func (h *harness) connect(t *testing.T) (string, *fakePeer) {
	t.Helper()
	peer := &fakePeer{}
	id, err := h.sessions.Connect(peer)
	require.NoError(t, err)
	return id, peer
}

func decode[T protocol.Inbound](t *testing.T, format string, args ...any) T {
	t.Helper()
	msg, err := protocol.Decode([]byte(fmt.Sprintf(format, args...)))
	require.NoError(t, err)
	out, ok := msg.(T)
	require.True(t, ok, "decoded %T", msg)
	return out
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func registerTwoChunks(t *testing.T, h *harness, owner string) string {
	t.Helper()
	reg, err := h.transfers.Register(owner, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","fileName":"a.txt","fileSize":11,"fileType":"text/plain","fileIndex":0,"totalFiles":1,"totalChunks":2}`))
	require.NoError(t, err)
	return reg.Code
}

func uploadChunk(t *testing.T, h *harness, owner, code string, index int, data string) protocol.FileStored {
	t.Helper()
	stored, err := h.transfers.Upload(owner, decode[*protocol.FileData](t,
		`{"type":"file-data","code":%q,"fileIndex":0,"chunkIndex":%d,"totalChunks":2,"data":%q}`, code, index, b64(data)))
	require.NoError(t, err)
	return stored
}

func TestConnect_SendsConnectionID(t *testing.T) {
	h := newHarness(t, "AB12CD")
	id, peer := h.connect(t)

	require.Equal(t, []string{protocol.TypeConnectionID}, peer.types())
	require.Equal(t, protocol.NewConnectionID(id), peer.last())
	require.Equal(t, 1, h.sessions.ConnectedClients())
}

func TestTransfer_PendingThenAvailableThenDelivered(t *testing.T) {
	h := newHarness(t, "AB12CD")
	sender, senderPeer := h.connect(t)
	receiver, receiverPeer := h.connect(t)

	code := registerTwoChunks(t, h, sender)
	require.Equal(t, "AB12CD", code)

	replies, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, protocol.FilePending{Type: protocol.TypeFilePending, Code: code, ReadyFiles: 0, TotalFiles: 1}, replies[0])

	first := uploadChunk(t, h, sender, code, 1, "world")
	require.False(t, first.FileComplete)
	require.Equal(t, 1, first.ReceivedChunks)

	second := uploadChunk(t, h, sender, code, 0, "hello ")
	require.True(t, second.FileComplete)
	require.True(t, second.BatchComplete)
	require.Equal(t, []string{protocol.TypeConnectionID, protocol.TypeFileAvailable}, receiverPeer.types())

	// a retransmit does not notify again
	uploadChunk(t, h, sender, code, 0, "hello ")
	require.Len(t, receiverPeer.types(), 2)

	replies, err = h.transfers.Request(receiver, code)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	ready, ok := replies[0].(protocol.FileInfo)
	require.True(t, ok)
	require.Equal(t, protocol.TypeFileReady, ready.Type)
	require.Equal(t, "a.txt", ready.FileName)
	require.Equal(t, "text/plain", ready.FileType)
	require.Equal(t, b64("hello world"), ready.Data)
	require.Equal(t, 0, h.transfers.ActiveTransfers())

	_, err = h.transfers.Request(receiver, code)
	require.ErrorIs(t, err, cerr.ErrUnknownCode)

	ack := decode[*protocol.DownloadAck](t, `{"type":"download-success","code":"AB12CD","fileName":"a.txt"}`)
	require.NoError(t, h.transfers.Acknowledge(receiver, ack))
	require.Equal(t, ack.Raw, senderPeer.last())
}

func TestTransfer_PartialBatchReportsReadyFiles(t *testing.T) {
	h := newHarness(t, "ZERO00")
	sender, _ := h.connect(t)
	receiver, receiverPeer := h.connect(t)

	reg, err := h.transfers.Register(sender, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","fileName":"empty","fileSize":0,"fileType":"","fileIndex":0,"totalFiles":2}`))
	require.NoError(t, err)

	replies, err := h.transfers.Request(receiver, reg.Code)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, protocol.TypeFileReady, typeOf(replies[0]))
	require.Empty(t, replies[0].(protocol.FileInfo).Data)
	require.Equal(t, protocol.TypeFilePending, typeOf(replies[1]))
	require.Equal(t, 1, replies[1].(protocol.FilePending).ReadyFiles)

	_, err = h.transfers.Register(sender, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","code":%q,"fileName":"empty2","fileSize":0,"fileType":"","fileIndex":1,"totalFiles":2}`, reg.Code))
	require.NoError(t, err)
	require.Equal(t, []string{protocol.TypeConnectionID, protocol.TypeFileAvailable, protocol.TypeFileAvailable},
		receiverPeer.types())
}

func TestTransfer_DirectUploadIssuesCode(t *testing.T) {
	h := newHarness(t, "DIRECT")
	sender, _ := h.connect(t)

	stored, err := h.transfers.Upload(sender, decode[*protocol.FileData](t,
		`{"type":"file-data","fileName":"note.txt","fileSize":2,"fileIndex":0,"data":%q}`, b64("hi")))
	require.NoError(t, err)
	require.Equal(t, "DIRECT", stored.Code)
	require.Nil(t, stored.ChunkIndex)
	require.True(t, stored.BatchComplete)

	receiver, _ := h.connect(t)
	replies, err := h.transfers.Request(receiver, "DIRECT")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, protocol.DefaultFileType, replies[0].(protocol.FileInfo).FileType)
}

func TestTransfer_ConcurrentRequestsDeliverOnce(t *testing.T) {
	h := newHarness(t, "RACE01")
	sender, _ := h.connect(t)
	code := registerTwoChunks(t, h, sender)
	uploadChunk(t, h, sender, code, 0, "a")
	uploadChunk(t, h, sender, code, 1, "b")

	const receivers = 8
	ids := make([]string, receivers)
	for i := range ids {
		ids[i], _ = h.connect(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		notFound  int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.transfers.Request(id, code)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				delivered++
			} else if errors.Is(err, cerr.ErrUnknownCode) {
				notFound++
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 1, delivered)
	require.Equal(t, receivers-1, notFound)
}

func TestTransfer_ForeignOwnerRejected(t *testing.T) {
	h := newHarness(t, "OWNED1")
	sender, _ := h.connect(t)
	intruder, _ := h.connect(t)
	code := registerTwoChunks(t, h, sender)

	_, err := h.transfers.Register(intruder, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","code":%q,"fileName":"x","fileSize":1,"fileType":"","fileIndex":0,"totalFiles":1}`, code))
	require.ErrorIs(t, err, cerr.ErrNotOwner)

	_, err = h.transfers.Upload(intruder, decode[*protocol.FileData](t,
		`{"type":"file-data","code":%q,"fileIndex":0,"chunkIndex":0,"totalChunks":2,"data":%q}`, code, b64("EVIL! ")))
	require.ErrorIs(t, err, cerr.ErrNotOwner)

	uploadChunk(t, h, sender, code, 0, "hello ")
	uploadChunk(t, h, sender, code, 1, "world")

	receiver, _ := h.connect(t)
	replies, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, b64("hello world"), replies[0].(protocol.FileInfo).Data)
}

func TestTransfer_DirectIntoRegisteredBatch(t *testing.T) {
	h := newHarness(t, "MIXED1")
	sender, _ := h.connect(t)
	receiver, _ := h.connect(t)

	reg, err := h.transfers.Register(sender, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","fileName":"a.txt","fileSize":1,"fileType":"text/plain","fileIndex":0,"totalFiles":2,"totalChunks":1}`))
	require.NoError(t, err)
	_, err = h.transfers.Register(sender, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","code":%q,"fileName":"b.csv","fileSize":2,"fileType":"text/csv","fileIndex":1,"totalFiles":2}`, reg.Code))
	require.NoError(t, err)

	_, err = h.transfers.Upload(sender, decode[*protocol.FileData](t,
		`{"type":"file-data","code":%q,"fileIndex":0,"chunkIndex":0,"totalChunks":1,"data":%q}`, reg.Code, b64("a")))
	require.NoError(t, err)
	stored, err := h.transfers.Upload(sender, decode[*protocol.FileData](t,
		`{"type":"file-data","code":%q,"fileIndex":1,"data":%q}`, reg.Code, b64("bb")))
	require.NoError(t, err)
	require.True(t, stored.BatchComplete)

	replies, err := h.transfers.Request(receiver, reg.Code)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	second := replies[1].(protocol.FileInfo)
	require.Equal(t, "b.csv", second.FileName)
	require.Equal(t, "text/csv", second.FileType)
	require.Equal(t, b64("bb"), second.Data)
}

func TestAcknowledge_OnlyFromPickupReceiver(t *testing.T) {
	h := newHarness(t, "ACK001")
	sender, senderPeer := h.connect(t)
	receiver, _ := h.connect(t)
	bystander, _ := h.connect(t)
	code := registerTwoChunks(t, h, sender)

	ack := decode[*protocol.DownloadAck](t, `{"type":"download-success","code":%q,"fileName":"a.txt"}`, code)
	require.ErrorIs(t, h.transfers.Acknowledge(bystander, ack), cerr.ErrUnknownCode, "not picked up yet")

	uploadChunk(t, h, sender, code, 0, "hello ")
	uploadChunk(t, h, sender, code, 1, "world")
	_, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)

	require.ErrorIs(t, h.transfers.Acknowledge(bystander, ack), cerr.ErrUnknownCode)
	require.Equal(t, []string{protocol.TypeConnectionID}, senderPeer.types())

	require.NoError(t, h.transfers.Acknowledge(receiver, ack))
	require.Equal(t, ack.Raw, senderPeer.last())
}

func TestDisconnect_NotifiesWaitingReceiverOnce(t *testing.T) {
	h := newHarness(t, "GONE01")
	sender, senderPeer := h.connect(t)
	receiver, receiverPeer := h.connect(t)
	code := registerTwoChunks(t, h, sender)

	_, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)

	require.True(t, h.sessions.Disconnect(sender, "socket closed"))
	require.False(t, h.sessions.Disconnect(sender, "socket closed"))
	require.True(t, senderPeer.closed)

	require.Equal(t, []string{protocol.TypeConnectionID, protocol.TypeSenderDisconnected}, receiverPeer.types())
	require.Equal(t, protocol.NewSenderDisconnected(code), receiverPeer.last())

	_, err = h.transfers.Request(receiver, code)
	require.ErrorIs(t, err, cerr.ErrSenderDisconnected)
	require.Equal(t, 1, h.sessions.ConnectedClients())
}

func TestDisconnect_DropsReceiverWait(t *testing.T) {
	h := newHarness(t, "WAIT01")
	sender, _ := h.connect(t)
	receiver, _ := h.connect(t)
	code := registerTwoChunks(t, h, sender)

	_, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)
	require.Equal(t, 1, h.transfers.delivery.Waiting())

	h.sessions.Disconnect(receiver, "socket closed")
	require.Equal(t, 0, h.transfers.delivery.Waiting())
}

func TestSweepExpired_NotifiesOwnerAndReceiver(t *testing.T) {
	h := newHarness(t, "OLD001")
	sender, senderPeer := h.connect(t)
	receiver, receiverPeer := h.connect(t)
	code := registerTwoChunks(t, h, sender)
	_, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)

	require.Equal(t, 0, h.transfers.SweepExpired(h.clock.Now().Add(testTTL)))

	h.clock.Advance(testTTL + time.Second)
	require.Equal(t, 1, h.transfers.SweepExpired(h.clock.Now()))
	require.Equal(t, protocol.NewTransferExpired(code), senderPeer.last())
	require.Equal(t, protocol.NewTransferExpired(code), receiverPeer.last())

	_, err = h.transfers.Request(receiver, code)
	require.ErrorIs(t, err, cerr.ErrTransferExpired)
}

func TestSweepExpired_AfterLazyExpiryStillNotifies(t *testing.T) {
	h := newHarness(t, "LATE01")
	sender, senderPeer := h.connect(t)
	receiver, receiverPeer := h.connect(t)
	code := registerTwoChunks(t, h, sender)
	_, err := h.transfers.Request(receiver, code)
	require.NoError(t, err)

	h.clock.Advance(testTTL + time.Second)
	other, _ := h.connect(t)
	_, err = h.transfers.Request(other, code)
	require.ErrorIs(t, err, cerr.ErrTransferExpired)

	_, err = h.transfers.Register(other, decode[*protocol.RegisterFile](t,
		`{"type":"register-file","code":%q,"fileName":"x","fileSize":1,"fileType":"","fileIndex":0,"totalFiles":1}`, code))
	require.ErrorIs(t, err, cerr.ErrTransferExpired, "an expired code cannot be taken over")

	require.Equal(t, 1, h.transfers.SweepExpired(h.clock.Now()))
	require.Equal(t, protocol.NewTransferExpired(code), senderPeer.last())
	require.Equal(t, protocol.NewTransferExpired(code), receiverPeer.last())
}

func TestSweepStale_ClosesSilentSessions(t *testing.T) {
	h := newHarness(t, "STALE1")
	quiet, quietPeer := h.connect(t)
	chatty, _ := h.connect(t)

	h.clock.Advance(45 * time.Second)
	require.True(t, h.sessions.Touch(chatty))
	h.clock.Advance(20 * time.Second)

	require.Equal(t, 1, h.sessions.SweepStale(h.clock.Now()))
	require.True(t, quietPeer.closed)
	require.False(t, h.sessions.Touch(quiet))
	require.True(t, h.sessions.Touch(chatty))
}

func TestRelay_ForwardsOpaquePayload(t *testing.T) {
	h := newHarness(t, "SIGNAL")
	from, _ := h.connect(t)
	to, toPeer := h.connect(t)

	sig := decode[*protocol.Signal](t, `{"type":"offer","targetId":%q,"data":{"sdp":"v=0"}}`, to)
	require.NoError(t, h.signaling.Relay(from, sig))

	relayed, ok := toPeer.last().(protocol.RelayedSignal)
	require.True(t, ok)
	require.Equal(t, protocol.TypeOffer, relayed.Type)
	require.Equal(t, from, relayed.FromID)
	require.JSONEq(t, `{"sdp":"v=0"}`, string(relayed.Data))
}

func TestRelay_UnknownTarget(t *testing.T) {
	h := newHarness(t, "SIGNAL")
	from, _ := h.connect(t)

	sig := decode[*protocol.Signal](t, `{"type":"ice-candidate","targetId":"AAA-BBB-CCC","data":{}}`)
	require.ErrorIs(t, h.signaling.Relay(from, sig), cerr.ErrPeerNotFound)
}
