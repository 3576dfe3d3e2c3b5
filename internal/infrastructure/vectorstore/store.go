package vectorstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/log"

	_ "modernc.org/sqlite"
)

// CollectionName 逻辑集合名
// 单库单集合，集合维度由首个写入者固定
const CollectionName = "data"

// Store 向量数据库网关
// 每进程一个实例、一条底层连接，进程结束时关闭
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open 打开（必要时创建）向量数据库文件
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to create database directory %s", dir)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to open database %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to ping database %s", path)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: log.NewModuleLogger("vectorstore", "store"),
	}, nil
}

// Path 返回数据库文件路径
func (s *Store) Path() string {
	return s.path
}

// Close 关闭底层连接
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureMetaTable 确保元数据表存在
func (s *Store) ensureMetaTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS collection_meta (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL
	);`)
	return err
}

// storedDimension 查询集合已固定的维度；集合不存在返回 (0, false)
func (s *Store) storedDimension() (int, bool, error) {
	var dim int
	err := s.db.QueryRow(`SELECT dimension FROM collection_meta WHERE name = ?`, CollectionName).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

// OpenOrCreateCollection 打开集合，不存在则以给定维度创建
// 首个写入者固定维度；后续以不同维度打开报 DimensionMismatch
func (s *Store) OpenOrCreateCollection(dimension int) (*Collection, error) {
	if dimension <= 0 {
		return nil, index.NewError(index.ErrCollectionAccess, "invalid collection dimension %d", dimension)
	}

	if err := s.ensureMetaTable(); err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to create meta table")
	}

	stored, exists, err := s.storedDimension()
	if err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to read collection meta")
	}

	if exists {
		if stored != dimension {
			return nil, index.NewDimensionMismatch(stored, dimension)
		}
		return &Collection{db: s.db, dimension: stored}, nil
	}

	createSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		content TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		document_id TEXT NOT NULL
	);`, CollectionName)
	if _, err := s.db.Exec(createSQL); err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to create collection table")
	}

	if _, err := s.db.Exec(
		`INSERT INTO collection_meta (name, dimension) VALUES (?, ?)`,
		CollectionName, dimension,
	); err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to record collection dimension")
	}

	s.logger.Info("Created vector collection",
		"collection", CollectionName,
		"dimension", dimension,
	)

	return &Collection{db: s.db, dimension: dimension}, nil
}

// OpenCollection 打开已存在的集合（只读路径）
// 集合不存在（从未入库）返回 CollectionNotFound，属预期错误
func (s *Store) OpenCollection() (*Collection, error) {
	if err := s.ensureMetaTable(); err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to create meta table")
	}

	stored, exists, err := s.storedDimension()
	if err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to read collection meta")
	}
	if !exists {
		return nil, index.NewError(index.ErrCollectionNotFound, "collection %q does not exist, run an ingestion first", CollectionName)
	}

	return &Collection{db: s.db, dimension: stored}, nil
}

// DropCollection 删除集合数据和元数据（clearAll 使用）
func (s *Store) DropCollection() error {
	if err := s.ensureMetaTable(); err != nil {
		return index.WrapError(index.ErrCollectionAccess, err, "failed to create meta table")
	}
	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, CollectionName)); err != nil {
		return index.WrapError(index.ErrCollectionAccess, err, "failed to drop collection table")
	}
	if _, err := s.db.Exec(`DELETE FROM collection_meta WHERE name = ?`, CollectionName); err != nil {
		return index.WrapError(index.ErrCollectionAccess, err, "failed to delete collection meta")
	}
	return nil
}

// Collection 打开后的向量集合
type Collection struct {
	db        *sql.DB
	dimension int
}

// Dimension 返回集合固定的向量维度
func (c *Collection) Dimension() int {
	return c.dimension
}

// Write 追加（或覆盖）一批记录
// 整批一个事务：中途失败回滚并报错，不允许静默丢行；
// 向量维度与集合不一致是 DimensionMismatch，向上传播为整次入库致命错误
func (c *Collection) Write(records []index.Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		if len(rec.Vector) != c.dimension {
			return index.NewDimensionMismatch(c.dimension, len(rec.Vector))
		}
	}

	tx, err := c.db.Begin()
	if err != nil {
		return index.WrapError(index.ErrCollectionAccess, err, "failed to begin write transaction")
	}

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (key, embedding, content, context, document_id) VALUES (?, ?, ?, ?, ?)`,
		CollectionName,
	))
	if err != nil {
		tx.Rollback()
		return index.WrapError(index.ErrCollectionAccess, err, "failed to prepare write statement")
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.Key, encodeVector(rec.Vector), rec.Content, rec.Context, rec.DocumentID); err != nil {
			tx.Rollback()
			return index.WrapError(index.ErrCollectionAccess, err, "failed to write record %s", rec.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return index.WrapError(index.ErrCollectionAccess, err, "failed to commit write transaction")
	}
	return nil
}

// Search 相似度搜索，按分数降序返回前 topK 条
// 全表扫描 + 余弦相似度；零行返回空切片，由调用方决定是否视作 NoSearchResults
func (c *Collection) Search(vector []float32, topK int) ([]index.SearchHit, error) {
	if len(vector) != c.dimension {
		return nil, index.NewDimensionMismatch(c.dimension, len(vector))
	}
	if topK <= 0 {
		topK = 5
	}

	rows, err := c.db.Query(fmt.Sprintf(
		`SELECT key, embedding, content, context, document_id FROM %s`, CollectionName,
	))
	if err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to scan collection")
	}
	defer rows.Close()

	var hits []index.SearchHit
	for rows.Next() {
		var rec index.Record
		var blob []byte
		if err := rows.Scan(&rec.Key, &blob, &rec.Content, &rec.Context, &rec.DocumentID); err != nil {
			return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to scan record")
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to decode embedding for %s", rec.Key)
		}
		rec.Vector = vec

		score, err := cosineSimilarity(vector, vec)
		if err != nil {
			return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to score record %s", rec.Key)
		}
		hits = append(hits, index.SearchHit{Score: score, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, index.WrapError(index.ErrCollectionAccess, err, "failed to iterate collection")
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count 返回集合行数
func (c *Collection) Count() (int, error) {
	var n int
	err := c.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, CollectionName)).Scan(&n)
	if err != nil {
		return 0, index.WrapError(index.ErrCollectionAccess, err, "failed to count collection rows")
	}
	return n, nil
}
