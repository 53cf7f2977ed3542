package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type 事件类型
type Type string

const (
	// StepAssigned 步骤任务已分配给处理人
	StepAssigned Type = "step.assigned"
	// ActionExecuted 处理人执行了动作
	ActionExecuted Type = "action.executed"
	// TaskCompleted 任务到达结束步骤
	TaskCompleted Type = "task.completed"
	// TaskCancelled 任务被取消
	TaskCancelled Type = "task.cancelled"
)

// Event 流程事件，事务提交后发布
type Event struct {
	ID          string
	Type        Type
	TenantID    string
	TaskID      string
	TaskTitle   string
	StepTaskID  string
	StepID      string
	StepName    string
	RecipientID string
	ActorID     string
	ActionName  string
	Priority    string
	OccurredAt  time.Time
}

// Publisher 事件发布方
type Publisher interface {
	Publish(evt Event)
}

// Config 控制事件总线行为
type Config struct {
	BufferSize int
}

const allTypes Type = "*"

// Bus 进程内事件总线，发布不阻塞，消费慢时丢弃
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type]map[uint64]chan Event
	seq    uint64
	buffer int
}

// NewBus 创建事件总线
func NewBus(cfg *Config) *Bus {
	buffer := 64
	if cfg != nil && cfg.BufferSize > 0 {
		buffer = cfg.BufferSize
	}
	return &Bus{
		subs:   make(map[Type]map[uint64]chan Event),
		buffer: buffer,
	}
}

// Publish 发布事件，缺省补齐 ID 与时间
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, topic := range []Type{evt.Type, allTypes} {
		for _, ch := range b.subs[topic] {
			select {
			case ch <- evt:
			default:
				// 接收方处理慢则丢弃，保持非阻塞
			}
		}
	}
}

// Subscribe 订阅指定类型的事件
func (b *Bus) Subscribe(eventType Type) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[eventType]; !ok {
		b.subs[eventType] = make(map[uint64]chan Event)
	}
	b.subs[eventType][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.removeListener(eventType, id) })
	}
}

// SubscribeAll 订阅全部事件
func (b *Bus) SubscribeAll() (<-chan Event, func()) {
	return b.Subscribe(allTypes)
}

func (b *Bus) removeListener(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if listeners, ok := b.subs[eventType]; ok {
		if ch, exists := listeners[id]; exists {
			delete(listeners, id)
			close(ch)
		}
		if len(listeners) == 0 {
			delete(b.subs, eventType)
		}
	}
}
