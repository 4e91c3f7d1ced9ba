// Package chain implements the Concordium gRPC v2 node client and the
// chain submitter (C4): node selection with failover, fetching current
// chain parameters and the next sequence number, building and signing
// the update payload, and broadcasting it.
package chain

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/concordium/eur2ccd-service/internal/model"
)

// consensusStatusResponse mirrors the subset of GetConsensusInfo the
// submitter needs.
type consensusStatusResponse struct {
	LastFinalizedBlock string `json:"lastFinalizedBlock"`
	ProtocolVersion    uint64 `json:"protocolVersion"`
}

// chainParametersResponse mirrors the update-queue state for the
// micro-CCD-per-euro parameter: the currently effective rate, the next
// sequence number for that update queue, and the level-2 authorization
// policy governing it.
type chainParametersResponse struct {
	CurrentNumerator   uint64   `json:"currentNumerator"`
	CurrentDenominator uint64   `json:"currentDenominator"`
	NextSequenceNumber uint64   `json:"nextSequenceNumber"`
	AuthorizedKeys     []uint16 `json:"authorizedKeys"`
	Threshold          int      `json:"threshold"`
	// Level2Keys is the chain's full ordered level-2 governance key
	// list; a held signer's authorized index is its position in this
	// list, not whatever index its key file happens to declare.
	Level2Keys [][]byte `json:"level2Keys"`
}

// submitUpdateRequest is the wire payload for broadcasting a signed
// chain update.
type submitUpdateRequest struct {
	SequenceNumber uint64            `json:"sequenceNumber"`
	EffectiveTime  uint64            `json:"effectiveTime"`
	ExpiryTime     int64             `json:"expiryTime"`
	Numerator      uint64            `json:"numerator"`
	Denominator    uint64            `json:"denominator"`
	Signatures     map[uint16][]byte `json:"signatures"`
}

// submitUpdateResponse is the broadcast result. DuplicateSequenceNumber
// is treated as success (spec.md 4.4 step 7); Rejected with a non-empty
// reason is fatal for the tick.
type submitUpdateResponse struct {
	Accepted                bool   `json:"accepted"`
	DuplicateSequenceNumber bool   `json:"duplicateSequenceNumber"`
	RejectReason            string `json:"rejectReason,omitempty"`
}

// NodeClient talks to one Concordium gRPC v2 endpoint.
type NodeClient struct {
	Address string
	conn    *grpc.ClientConn
}

// Dial opens a connection to a node. No RPC token is attached, neither
// at dial time nor per call: the `rpc-token` configuration option is not
// passed to the node client.
func Dial(address string) (*NodeClient, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial node %s: %w", address, err)
	}
	return &NodeClient{Address: address, conn: conn}, nil
}

// Close releases the underlying connection.
func (c *NodeClient) Close() error { return c.conn.Close() }

func (c *NodeClient) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(jsonCodecName))
}

// ConsensusStatus fetches the current consensus status, primarily for
// the protocol_version metric.
func (c *NodeClient) ConsensusStatus(ctx context.Context) (consensusStatusResponse, error) {
	var resp consensusStatusResponse
	err := c.invoke(ctx, "/concordium.v2.Queries/GetConsensusInfo", struct{}{}, &resp)
	return resp, err
}

// ChainParameters fetches the current on-chain micro-CCD-per-euro rate,
// the next sequence number for that update queue, and the authorization
// policy governing it (spec.md 4.4 steps 2 and 6).
func (c *NodeClient) ChainParameters(ctx context.Context) (chainParametersResponse, error) {
	var resp chainParametersResponse
	err := c.invoke(ctx, "/concordium.v2.Queries/GetBlockChainParameters", struct{}{}, &resp)
	return resp, err
}

// SubmitUpdate broadcasts a signed chain-update transaction.
func (c *NodeClient) SubmitUpdate(ctx context.Context, intent model.ChainUpdateIntent) (submitUpdateResponse, error) {
	req := submitUpdateRequest{
		SequenceNumber: intent.SequenceNumber,
		EffectiveTime:  intent.EffectiveTime,
		ExpiryTime:     intent.ExpiryTime.Unix(),
		Numerator:      intent.Fraction.Numerator,
		Denominator:    intent.Fraction.Denominator,
		Signatures:     intent.Signatures,
	}
	var resp submitUpdateResponse
	err := c.invoke(ctx, "/concordium.v2.Submission/SendBlockItem", req, &resp)
	return resp, err
}

// DefaultDialTimeout bounds how long node selection waits on any one
// candidate before failing over to the next (spec.md 4.4 step 1).
const DefaultDialTimeout = 5 * time.Second
