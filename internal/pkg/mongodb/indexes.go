package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"storyforge/internal/model/pipeline"
)

// EnsureIndexes 创建所有模型的索引
// 应用启动时调用一次；模型通过 Model 接口自带索引定义
func EnsureIndexes(db *mongo.Database) error {
	ctx := context.Background()

	models := []Model{
		&pipeline.Run{},
	}

	return EnsureAllIndexes(ctx, db, models...)
}
