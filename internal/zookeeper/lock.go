// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/domain"
)

const (
	lockRoot = "/reward_locks" // 所有分布式锁的根节点
	lockName = "lock-"
	seqLen   = 10 // ZooKeeper 顺序节点后缀固定 10 位
)

// Conn 是锁用到的 *zk.Conn 方法子集。
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

// Connect 连接 ZooKeeper 集群，servers 格式为 "host1:2181,host2:2181"。
func Connect(servers string, sessionTimeout time.Duration) (*zk.Conn, error) {
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}
	conn, _, err := zk.Connect(strings.Split(servers, ","), sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "zookeeper: connect")
	}
	return conn, nil
}

// DistributedLock 是一个基于临时顺序节点的非阻塞锁
type DistributedLock struct {
	conn     Conn
	path     string // 锁的路径，例如 /reward_locks/bulk-issuance-1
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保父节点存在
func NewDistributedLock(conn Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "zookeeper: exists %s", path)
	}
	if exists {
		return nil
	}
	if _, err := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "zookeeper: create %s", path)
	}
	return nil
}

// TryLock 尝试获取锁。已有其他持有者时删除自己的节点并返回 false。
func (l *DistributedLock) TryLock() (bool, error) {
	// 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+lockName, []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, fmt.Errorf("failed to create sequential node: %w", err)
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	// protected 节点带有 GUID 前缀，只能按序号排序
	sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")
	if len(children) > 0 && children[0] == myNodeName {
		l.lockNode = nodePath
		return true, nil
	}

	if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return false, fmt.Errorf("failed to delete contender node: %w", err)
	}
	return false, nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

func sequence(node string) string {
	if len(node) < seqLen {
		return node
	}
	return node[len(node)-seqLen:]
}

// Locker 用 ZooKeeper 保证同一资源在集群内只有一个批处理任务运行。
type Locker struct {
	conn Conn
}

func NewLocker(conn Conn) *Locker {
	return &Locker{conn: conn}
}

// Acquire 实现 port.JobLocker。
func (l *Locker) Acquire(ctx context.Context, resource string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock, err := NewDistributedLock(l.conn, resource)
	if err != nil {
		return nil, err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Ctx(ctx).Warn().Str("resource", resource).Msg("zookeeper lock held by another runner")
		return nil, domain.ErrJobInProgress
	}
	return lock.Unlock, nil
}
