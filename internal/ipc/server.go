package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"github.com/google/uuid"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/workflow"
)

// Server exposes workflow control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, manager *workflow.Manager, logger *slog.Logger) (*Server, error) {
	if manager == nil {
		return nil, errors.New("ipc server requires a workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithComponent(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{manager: manager, logger: logger, socketPath: path}
	if err := rpcServer.RegisterName("Conveyor", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("socket not removed",
			logging.String("socket", s.path), logging.Error(err))
	}
}

type service struct {
	manager    *workflow.Manager
	logger     *slog.Logger
	socketPath string
}

// requestCtx stamps every RPC with a correlation identifier.
func (s *service) requestCtx() context.Context {
	return services.WithRequestID(context.Background(), uuid.NewString())
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	summary := s.manager.Status(s.requestCtx())
	*resp = StatusResponse{
		Running:       summary.Running,
		Dispatching:   summary.Dispatching,
		Scanning:      summary.Scanning,
		Pending:       summary.Pending,
		Active:        summary.Active,
		MaxConcurrent: summary.MaxConcurrent,
		Processed:     summary.Processed,
		Failed:        summary.Failed,
		LastError:     summary.LastError,
		HistoryTotal:  summary.HistoryTotal,
		SocketPath:    s.socketPath,
		PID:           os.Getpid(),
	}
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	s.manager.Pause()
	resp.Paused = true
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	s.manager.Resume()
	resp.Resumed = true
	return nil
}

func (s *service) Scan(_ ScanRequest, resp *ScanResponse) error {
	go s.manager.Scan(s.requestCtx())
	resp.Started = true
	return nil
}

func (s *service) Persist(_ PersistRequest, resp *PersistResponse) error {
	if err := s.manager.PersistNow(); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Persisted = true
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	pending, active := s.manager.Queue().Entries()
	resp.Pending = wireEntries(pending)
	resp.Active = wireEntries(active)
	return nil
}

func wireEntries(entries []queue.EntryInfo) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, QueueEntry{
			Path:       e.Path,
			Kind:       string(e.Kind),
			EnqueuedAt: e.EnqueuedAt,
		})
	}
	return out
}

func (s *service) HistoryList(req HistoryListRequest, resp *HistoryListResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.manager.History().Recent(s.requestCtx(), limit)
	if err != nil {
		return err
	}
	resp.Records = make([]HistoryRecord, 0, len(records))
	for _, rec := range records {
		resp.Records = append(resp.Records, HistoryRecord{
			ID:            rec.ID,
			Path:          rec.Path,
			Kind:          string(rec.Kind),
			Status:        string(rec.Status),
			FailedPhase:   string(rec.FailedPhase),
			ErrorMessage:  rec.ErrorMessage,
			SubtitleError: rec.SubtitleError,
			FinalPath:     rec.FinalPath,
			CompletedAt:   rec.CompletedAt,
		})
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.manager.TestNotification(s.requestCtx()); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	return nil
}
