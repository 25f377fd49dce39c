package meshcore

import (
	"errors"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/discovery/bootstrap"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// preset 预设名，在校验前应用到配置
	preset string

	// transport 外部传入的传输层，优先于 config.Transport.Kind
	transport interfaces.Transport

	// clock 调度器与各组件使用的时钟，测试时传入模拟时钟
	clock clock.Clock

	// reputation 推荐打分使用的信誉来源
	reputation bootstrap.ReputationFunc

	// methods 追加到引导回退链的方法
	methods []interfaces.FallbackMethod

	// profile 本节点画像，覆盖配置中的坐标与兴趣
	profile *types.LocalProfile
}

// WithPreset 使用预设配置（server / mobile / test）
//
// 预设在用户配置之上修改对应字段，然后统一校验。
func WithPreset(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("preset name cannot be empty")
		}
		o.preset = name
		return nil
	}
}

// WithTransport 使用外部传输层
//
// 设置后不再按 config.Transport.Kind 创建传输；传输的关闭由调用方负责。
func WithTransport(t interfaces.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("transport cannot be nil")
		}
		o.transport = t
		return nil
	}
}

// WithClock 设置时钟
//
// 所有周期任务、退避计时与时间戳都使用该时钟。
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock cannot be nil")
		}
		o.clock = clk
		return nil
	}
}

// WithReputation 设置推荐打分的信誉来源，默认所有节点为 0.5
func WithReputation(fn bootstrap.ReputationFunc) Option {
	return func(o *options) error {
		o.reputation = fn
		return nil
	}
}

// WithFallbackMethods 追加引导回退方法
//
// 方法按 Priority 与内置的 DNS、种子端点、局域网发现一起排序。
func WithFallbackMethods(methods ...interfaces.FallbackMethod) Option {
	return func(o *options) error {
		for _, m := range methods {
			if m == nil {
				return errors.New("fallback method cannot be nil")
			}
		}
		o.methods = append(o.methods, methods...)
		return nil
	}
}

// WithLocalProfile 设置本节点的位置与兴趣
func WithLocalProfile(p types.LocalProfile) Option {
	return func(o *options) error {
		if p.Location != nil && !p.Location.Valid() {
			return errors.New("profile location out of range")
		}
		cp := types.LocalProfile{Location: p.Location, Interests: types.NormalizeInterests(p.Interests)}
		o.profile = &cp
		return nil
	}
}

// applyOptions 应用选项并返回校验后的配置副本
func applyOptions(cfg *config.Config, opts []Option) (*config.Config, *options, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, nil, err
		}
	}

	if cfg == nil {
		cfg = config.NewConfig()
	} else {
		cfg = cfg.Clone()
	}
	if o.preset != "" {
		if err := config.ApplyPreset(cfg, o.preset); err != nil {
			return nil, nil, err
		}
	}
	return cfg, o, nil
}
