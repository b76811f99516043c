package abci

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// DefaultMaxTxBytes bounds the transactions selected for one block
const DefaultMaxTxBytes int64 = 1 << 22

// BlockProducer cuts a block every MinBlockTime on a single node and drives
// the application through propose, process, finalize and commit.
type BlockProducer struct {
	App          Application
	Clock        util.Clock
	MinBlockTime time.Duration
	MaxTxBytes   int64
	// SkipEmpty leaves the height unchanged when the mempool is empty
	SkipEmpty bool

	Logger *zap.SugaredLogger
	WAL    storage.WAL

	// OnCommit runs after every committed block
	OnCommit func(height int64, res ResponseFinalizeBlock)

	height int64
}

// NewBlockProducer resumes after lastHeight
func NewBlockProducer(app Application, clock util.Clock, lastHeight int64) *BlockProducer {
	return &BlockProducer{
		App:          app,
		Clock:        clock,
		MinBlockTime: 200 * time.Millisecond,
		MaxTxBytes:   DefaultMaxTxBytes,
		WAL:          storage.NewNopWAL(),
		height:       lastHeight,
	}
}

func (p *BlockProducer) Height() int64 { return p.height }

// ProduceBlock runs one block. It returns false when SkipEmpty is set and
// there was nothing to include.
func (p *BlockProducer) ProduceBlock() (bool, error) {
	next := p.height + 1
	prep := p.App.PrepareProposal(RequestPrepareProposal{Height: next, MaxTxBytes: p.MaxTxBytes})
	if len(prep.Txs) == 0 && p.SkipEmpty {
		return false, nil
	}
	if !p.App.ProcessProposal(RequestProcessProposal{Height: next, Txs: prep.Txs}).Accept {
		return false, fmt.Errorf("proposal at height %d rejected", next)
	}

	res := p.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    next,
		Timestamp: p.Clock.Now().Unix(),
		Txs:       prep.Txs,
	})
	commit, err := p.App.Commit()
	if err != nil {
		return false, fmt.Errorf("commit height %d: %w", next, err)
	}
	p.height = commit.Height

	if p.WAL != nil {
		p.WAL.Append(fmt.Sprintf("commit height=%d txs=%d apphash=0x%x", commit.Height, len(prep.Txs), commit.AppHash[:]))
	}
	if p.Logger != nil && len(prep.Txs) > 0 {
		p.Logger.Infow("commit", "height", commit.Height, "txs", len(prep.Txs), "apphash", fmt.Sprintf("0x%x", commit.AppHash[:]))
	}
	if p.OnCommit != nil {
		p.OnCommit(commit.Height, res)
	}
	return true, nil
}

// Run produces blocks until ctx is cancelled
func (p *BlockProducer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Clock.After(p.MinBlockTime):
		}
		if _, err := p.ProduceBlock(); err != nil {
			return err
		}
	}
}
