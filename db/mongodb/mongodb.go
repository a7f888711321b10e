// Package mongodb 基于 MongoDB 的文件记录存储
package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/db"
)

type database struct {
	uri   string
	db    string
	mongo *mongo.Database
}

// config mongodb 相关配置
type config struct {
	Enable   bool   `yaml:"enable"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// MongoFileCollection 文件记录集合名
const MongoFileCollection = "files"

func init() {
	db.Register("mongodb", func(node yaml.Node) db.Database {
		conf := new(config)
		_ = node.Decode(conf)
		if conf.Database == "" {
			conf.Database = "wxhttp-database"
		}
		if !conf.Enable {
			return nil
		}
		return &database{uri: conf.URI, db: conf.Database}
	})
}

func (m *database) Open() error {
	cli, err := mongo.Connect(context.Background(), options.Client().ApplyURI(m.uri))
	if err != nil {
		return errors.Wrap(err, "open mongo connection error")
	}
	m.mongo = cli.Database(m.db)
	return nil
}

func (m *database) InsertFile(f *db.StoredFile) error {
	coll := m.mongo.Collection(MongoFileCollection)
	_, err := coll.UpdateOne(context.Background(), bson.D{{Key: "_id", Value: f.ID}}, bson.D{{Key: "$set", Value: f}}, options.Update().SetUpsert(true))
	return errors.Wrap(err, "insert error")
}

func (m *database) GetFile(id string) (*db.StoredFile, error) {
	coll := m.mongo.Collection(MongoFileCollection)
	var ret db.StoredFile
	err := coll.FindOne(context.Background(), bson.D{{Key: "_id", Value: id}}).Decode(&ret)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query error")
	}
	return &ret, nil
}

func (m *database) DeleteFile(id string) error {
	coll := m.mongo.Collection(MongoFileCollection)
	_, err := coll.DeleteOne(context.Background(), bson.D{{Key: "_id", Value: id}})
	return errors.Wrap(err, "delete error")
}

func (m *database) FilesBefore(t int64) ([]*db.StoredFile, error) {
	coll := m.mongo.Collection(MongoFileCollection)
	cur, err := coll.Find(context.Background(), bson.D{{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: t}}}})
	if err != nil {
		return nil, errors.Wrap(err, "query error")
	}
	var ret []*db.StoredFile
	if err = cur.All(context.Background(), &ret); err != nil {
		return nil, errors.Wrap(err, "decode error")
	}
	return ret, nil
}
