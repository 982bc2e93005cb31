package run

import (
	"context"
	"sort"
	"sync"
	"time"

	"storyforge/internal/model/pipeline"
)

// MemoryRepo Repository 的内存实现
// 单机运行且未配置 Mongo 时的默认仓库；进程退出后断点丢失
type MemoryRepo struct {
	mu   sync.RWMutex
	runs map[string]*pipeline.Run
}

// NewMemoryRepo 创建内存仓库
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{runs: make(map[string]*pipeline.Run)}
}

// Create 创建运行
func (r *MemoryRepo) Create(ctx context.Context, run *pipeline.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	r.runs[run.ID] = run.Clone()
	return nil
}

// FindByID 根据ID查询运行
func (r *MemoryRepo) FindByID(ctx context.Context, id string) (*pipeline.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	// 深拷贝：调用方拿到的 Run 不能和仓库内的副本共享 map/slice
	return stored.Clone(), nil
}

// Update 覆盖整个运行状态，版本号递增
func (r *MemoryRepo) Update(ctx context.Context, run *pipeline.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return ErrNotFound
	}
	run.Version++
	run.UpdatedAt = time.Now()
	r.runs[run.ID] = run.Clone()
	return nil
}

// List 查询运行列表（支持状态筛选 + 分页）
func (r *MemoryRepo) List(ctx context.Context, page, pageSize int64, status string) ([]*pipeline.Run, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*pipeline.Run
	for _, stored := range r.runs {
		if status != "" && string(stored.Status) != status {
			continue
		}
		all = append(all, stored.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
