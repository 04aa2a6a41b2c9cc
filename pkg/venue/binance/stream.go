package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackforestdev/njord-quant/internal/broker"
	"github.com/blackforestdev/njord-quant/internal/contracts"
)

// OrderStream listens to the Binance spot user data stream (listen key +
// keepalive ticker) and decodes executionReport events into
// contracts.BrokerOrderUpdate.
type OrderStream struct {
	Client  *Venue
	Testnet bool
}

var _ broker.OrderStreamer = (*OrderStream)(nil)

func (s *OrderStream) wsHost() string {
	if s.Testnet {
		return "testnet.binance.vision"
	}
	return "stream.binance.com:9443"
}

// Stream obtains a listen key, dials the user data stream, keeps the key
// alive every 30 minutes, and decodes executionReport messages until ctx is
// cancelled or the connection drops.
func (s *OrderStream) Stream(ctx context.Context) (<-chan contracts.BrokerOrderUpdate, error) {
	listenKey, err := s.Client.Client.CreateListenKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance order stream: create listen key: %w", err)
	}

	u := url.URL{Scheme: "wss", Host: s.wsHost(), Path: "/ws/" + listenKey}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance order stream: dial: %w", err)
	}

	out := make(chan contracts.BrokerOrderUpdate, 64)

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		defer close(out)
		defer conn.Close()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := s.Client.Client.KeepAliveListenKey(ctx, listenKey); err != nil {
						log.Printf("binance order stream: keepalive: %v", err)
					}
				}
			}
		}()

		for {
			if ctx.Err() != nil {
				return
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("binance order stream: read: %v", err)
				}
				return
			}
			update, ok := parseExecutionReport(msg)
			if !ok {
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

type executionReport struct {
	EventType         string `json:"e"`
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	OrderID           int64  `json:"i"`
	Status            string `json:"X"`
	LastExecutedQty   string `json:"l"`
	CumulativeFillQty string `json:"z"`
	TransactTime      int64  `json:"T"`
}

func parseExecutionReport(msg []byte) (contracts.BrokerOrderUpdate, bool) {
	var raw executionReport
	if err := json.Unmarshal(msg, &raw); err != nil || raw.EventType != "executionReport" {
		return contracts.BrokerOrderUpdate{}, false
	}
	filled, _ := strconv.ParseFloat(raw.CumulativeFillQty, 64)
	return contracts.BrokerOrderUpdate{
		ClientOrderID: raw.ClientOrderID,
		VenueOrderID:  fmt.Sprintf("%d", raw.OrderID),
		Symbol:        raw.Symbol,
		Status:        raw.Status,
		FilledQty:     filled,
		TsNs:          raw.TransactTime * int64(time.Millisecond),
	}, true
}
