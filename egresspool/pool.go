package egresspool

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"contact_harvest/egresspool/model"
	"contact_harvest/egresspool/storage"
	"contact_harvest/egresspool/validator"
	"contact_harvest/internal/shared/logger"
	"contact_harvest/internal/shared/types"
)

// Options 控制出口池的行为。
type Options struct {
	MaxUses int
	// Validator 不为空时，加载阶段会探测候选出口，未通过的只在本次运行中排除。
	Validator *validator.Validator
	Rand      *rand.Rand
	Now       func() time.Time
	Logger    *zerolog.Logger
}

// Pool 是出口池模块的总控制器：租用、轮换、拉黑与计数。
// 拉黑后活跃出口被清空，Rotate 或下一次 Lease 会随机换一个。
// 内部集合从不对外暴露，调用方只拿到 Endpoint 的值拷贝。
type Pool struct {
	mu        sync.Mutex
	endpoints map[string]*model.Endpoint // 未被拉黑的出口
	blocked   map[string]*model.Endpoint // 已拉黑的候选出口，含本次运行新拉黑的
	order     []string                   // 稳定顺序，保证随机选择可复现
	active    string
	maxUses   int
	blocklist storage.Blocklist
	rng       *rand.Rand
	now       func() time.Time
	log       zerolog.Logger
}

// Load 从候选列表中剔除持久化黑名单里的出口后构建出口池。
func Load(ctx context.Context, candidates []model.Endpoint, blocklist storage.Blocklist, opts Options) (*Pool, error) {
	p := &Pool{
		endpoints: make(map[string]*model.Endpoint),
		blocked:   make(map[string]*model.Endpoint),
		maxUses:   opts.MaxUses,
		blocklist: blocklist,
		rng:       opts.Rand,
		now:       opts.Now,
	}
	if p.maxUses <= 0 {
		p.maxUses = 1
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if p.now == nil {
		p.now = time.Now
	}
	if opts.Logger != nil {
		p.log = *opts.Logger
	} else {
		p.log = logger.WithComponent("EgressPool/Pool")
	}

	blocked, err := blocklist.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}

	usable := make([]model.Endpoint, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	skipped := 0
	for _, ep := range candidates {
		addr := ep.Address()
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if at, isBlocked := blocked[addr]; isBlocked {
			b := ep
			b.Blocked, b.BlockedAt = true, at
			p.blocked[addr] = &b
			skipped++
			continue
		}
		ep.UsageCount = 0
		ep.Blocked, ep.BlockedAt = false, time.Time{}
		usable = append(usable, ep)
	}

	if opts.Validator != nil && len(usable) > 0 {
		results := opts.Validator.Validate(ctx, usable)
		usable = usable[:0]
		for _, r := range results {
			if r.OK() {
				usable = append(usable, r.Endpoint)
			}
		}
	}

	for i := range usable {
		ep := usable[i]
		p.endpoints[ep.Address()] = &ep
		p.order = append(p.order, ep.Address())
	}
	sort.Strings(p.order)

	p.log.Info().
		Int("candidates", len(candidates)).
		Int("blocked", skipped).
		Int("usable", len(p.order)).
		Int("max_uses", p.maxUses).
		Msg("Egress pool loaded.")

	if len(p.order) == 0 {
		return nil, types.ErrNoEgressAvailable
	}
	return p, nil
}

// Lease 返回当前活跃出口；若其使用次数已达上限则随机换一个并清零计数。
func (p *Pool) Lease() (model.Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ep, ok := p.endpoints[p.active]; ok && ep.UsageCount < p.maxUses {
		return *ep, nil
	}
	return p.pickLocked()
}

// Rotate forces a fresh random pick regardless of the active endpoint's usage.
func (p *Pool) Rotate() (model.Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pickLocked()
}

// pickLocked 必须在 p.mu 加锁时调用。
func (p *Pool) pickLocked() (model.Endpoint, error) {
	if len(p.order) == 0 {
		p.active = ""
		return model.Endpoint{}, types.ErrNoEgressAvailable
	}
	addr := p.order[p.rng.Intn(len(p.order))]
	ep := p.endpoints[addr]
	ep.UsageCount = 0
	p.active = addr
	p.log.Debug().Str("egress", addr).Msg("Rotated to new egress endpoint.")
	return *ep, nil
}

// MarkBlocked 将出口写入持久化黑名单，落盘成功后才移出池；写入失败时出口保持原状，
// 之后可以再次调用。对已移出的出口重复调用无副作用。
// 持锁写盘，保证 Lease 不会在两步之间返回该出口。
func (p *Pool) MarkBlocked(ctx context.Context, ep model.Endpoint) error {
	addr := ep.Address()

	p.mu.Lock()
	defer p.mu.Unlock()
	cur, present := p.endpoints[addr]
	if !present {
		return nil
	}
	at := p.now().UTC()
	if err := p.blocklist.Add(ctx, addr, at); err != nil {
		return fmt.Errorf("persist blocked egress %s: %w", addr, err)
	}

	cur.Blocked, cur.BlockedAt = true, at
	p.blocked[addr] = cur
	delete(p.endpoints, addr)
	idx := sort.SearchStrings(p.order, addr)
	if idx < len(p.order) && p.order[idx] == addr {
		p.order = append(p.order[:idx], p.order[idx+1:]...)
	}
	if p.active == addr {
		p.active = ""
	}
	p.log.Warn().Str("egress", addr).Int("remaining", len(p.order)).Msg("Egress endpoint blocked and removed from pool.")
	return nil
}

// RecordUse 在一行成功完成后增加出口的使用计数。
func (p *Pool) RecordUse(ep model.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.endpoints[ep.Address()]; ok {
		cur.UsageCount++
	}
}

// Available returns the number of unblocked endpoints.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Blocked returns copies of the blocked candidates, oldest block first.
func (p *Pool) Blocked() []model.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Endpoint, 0, len(p.blocked))
	for _, ep := range p.blocked {
		out = append(out, *ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].BlockedAt.Before(out[j].BlockedAt)
		}
		return out[i].Address() < out[j].Address()
	})
	return out
}
