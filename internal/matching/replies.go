package matching

import (
	"sync"
)

// Reply 志愿者对一次定向提议的应答
type Reply struct {
	Accept     bool
	ElderEmail string
	ServiceID  string
}

// replyKey 以 (协商对象, 候选志愿者) 定位提议
// 协商对象优先用 service id，纯结对协商（无服务请求）退化为 elder email
type replyKey struct {
	subject   string
	candidate string
}

// replyTable 每次协商一个一次性单槽 rendezvous
// 取代“所有协商共用一条队列再按字符串过滤”的旧做法，杜绝无关协商互相串话
type replyTable struct {
	mu    sync.Mutex
	slots map[replyKey]chan Reply
}

func newReplyTable() *replyTable {
	return &replyTable{slots: make(map[replyKey]chan Reply)}
}

// create 开一个新槽；同 key 已有未决提议时返回 false
func (t *replyTable) create(key replyKey) (chan Reply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.slots[key]; exists {
		return nil, false
	}
	ch := make(chan Reply, 1)
	t.slots[key] = ch
	return ch, true
}

// resolve 投递应答；没有对应的槽（从未提议或已超时收槽）返回 false
func (t *replyTable) resolve(key replyKey, reply Reply) bool {
	t.mu.Lock()
	ch, ok := t.slots[key]
	if ok {
		delete(t.slots, key)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	// 槽带一格缓冲，投递不阻塞
	ch <- reply
	return true
}

// remove 回收未被应答的槽
func (t *replyTable) remove(key replyKey) {
	t.mu.Lock()
	delete(t.slots, key)
	t.mu.Unlock()
}
