package replay

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConnectionSnapshot struct {
	ID         string `json:"id"`
	Protocol   string `json:"protocol"`
	Actor      string `json:"actor"`
	RemoteAddr string `json:"remote_addr"`
	Index      int    `json:"index"`
	StartedAt  string `json:"started_at"`
}

type ConnectionSummary struct {
	Total      int            `json:"total"`
	Peak       int            `json:"peak"`
	Opened     int            `json:"opened"`
	ByProtocol map[string]int `json:"by_protocol"`
}

type ConnectionsResponse struct {
	GeneratedAt string               `json:"generated_at"`
	Summary     ConnectionSummary    `json:"summary"`
	Connections []ConnectionSnapshot `json:"connections"`
	FilterProto string               `json:"filter_protocol,omitempty"`
}

func (s *Server) registerConnection(conn ConnectionSnapshot) (string, func()) {
	if conn.ID == "" {
		conn.ID = "conn-" + uuid.NewString()[:12]
	}
	if conn.StartedAt == "" {
		conn.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.mu.Lock()
	s.live[conn.ID] = conn
	if len(s.live) > s.peak {
		s.peak = len(s.live)
	}
	s.mu.Unlock()

	return conn.ID, func() {
		s.mu.Lock()
		delete(s.live, conn.ID)
		s.mu.Unlock()
	}
}

// Connections lists live log-stream connections. Peak is the highest number
// ever open at the same time.
func (s *Server) Connections(protocol string) ConnectionsResponse {
	protocol = strings.TrimSpace(protocol)

	s.mu.Lock()
	defer s.mu.Unlock()

	connections := make([]ConnectionSnapshot, 0, len(s.live))
	summary := ConnectionSummary{
		Peak:       s.peak,
		Opened:     s.opened,
		ByProtocol: map[string]int{},
	}
	for _, conn := range s.live {
		if protocol != "" && conn.Protocol != protocol {
			continue
		}
		connections = append(connections, conn)
		summary.Total++
		summary.ByProtocol[conn.Protocol]++
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].Index < connections[j].Index
	})

	return ConnectionsResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     summary,
		Connections: connections,
		FilterProto: protocol,
	}
}
