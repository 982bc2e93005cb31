package run

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storyforge/internal/model/pipeline"
)

// ErrNotFound 运行不存在
var ErrNotFound = errors.New("pipeline run not found")

// Repository 运行状态仓库接口
// 编排器通过它做断点持久化；Mongo 未配置时退回内存实现
type Repository interface {
	Create(ctx context.Context, r *pipeline.Run) error
	FindByID(ctx context.Context, id string) (*pipeline.Run, error)
	Update(ctx context.Context, r *pipeline.Run) error
	List(ctx context.Context, page, pageSize int64, status string) ([]*pipeline.Run, int64, error)
}

// MongoRepo 实现 Repository
type MongoRepo struct {
	coll *mongo.Collection
}

// NewMongoRepo 创建运行状态仓库
func NewMongoRepo(db *mongo.Database) *MongoRepo {
	var r pipeline.Run
	return &MongoRepo{coll: db.Collection(r.Collection())}
}

// Create 创建运行
func (r *MongoRepo) Create(ctx context.Context, run *pipeline.Run) error {
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, run)
	return err
}

// FindByID 根据ID查询运行
func (r *MongoRepo) FindByID(ctx context.Context, id string) (*pipeline.Run, error) {
	var run pipeline.Run
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&run); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// Update 覆盖整个运行状态，版本号递增
func (r *MongoRepo) Update(ctx context.Context, run *pipeline.Run) error {
	run.Version++
	run.UpdatedAt = time.Now()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": run.ID}, run)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List 查询运行列表（支持状态筛选 + 分页）
func (r *MongoRepo) List(ctx context.Context, page, pageSize int64, status string) ([]*pipeline.Run, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}

	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var runs []*pipeline.Run
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}
