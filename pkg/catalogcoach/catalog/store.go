package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/CatalogCoach/pkg/models"
)

const schemaVersion = 1

// catalogInfo is the single header row of a catalog file.
type catalogInfo struct {
	ID                int    `gorm:"primaryKey"`
	Identifier        string `gorm:"type:varchar(64)"`
	SchemaVersion     int
	MinimumDurationMs int64
	MaximumDurationMs int64
	CreatedAt         time.Time
}

func (catalogInfo) TableName() string { return "catalog_info" }

type referenceRow struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Position   int    `gorm:"index:idx_reference_position"`
	DurationMs int64
	HashCount  int
	Signature  []byte
	CreatedAt  time.Time
}

func (referenceRow) TableName() string { return "reference_signatures" }

type mediaItemRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ReferenceID string `gorm:"type:varchar(36);index:idx_media_reference"`
	Position    int
}

func (mediaItemRow) TableName() string { return "media_items" }

type propertyRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MediaItemID uint   `gorm:"index:idx_property_item"`
	Key         string `gorm:"type:varchar(64)"`
	Value       string
}

func (propertyRow) TableName() string { return "media_item_properties" }

// storedReference is what a catalog file holds for one reference.
type storedReference struct {
	ID         string
	DurationMs int64
	HashCount  int
	Signature  []byte
	MediaItems []models.MediaItem
}

type store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// openStore opens the catalog database at path. Only a writer migrates the
// schema; a reader fails with ErrNotCatalogFile when the header table is
// missing.
func openStore(path string, writable bool) (*store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if !writable {
		if err := sqlDB.Ping(); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%w: %v", ErrNotCatalogFile, err)
		}
		if !db.Migrator().HasTable(&catalogInfo{}) {
			sqlDB.Close()
			return nil, ErrNotCatalogFile
		}
		return &store{db: db, sqlDB: sqlDB}, nil
	}

	if err := db.AutoMigrate(&catalogInfo{}, &referenceRow{}, &mediaItemRow{}, &propertyRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &store{db: db, sqlDB: sqlDB}, nil
}

func (s *store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// write stores the whole catalog in one transaction.
func (s *store) write(info catalogInfo, refs []storedReference) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		info.ID = 1
		if err := tx.Create(&info).Error; err != nil {
			return fmt.Errorf("writing catalog header: %w", err)
		}

		rows := make([]referenceRow, 0, len(refs))
		for i, r := range refs {
			rows = append(rows, referenceRow{
				ID:         r.ID,
				Position:   i,
				DurationMs: r.DurationMs,
				HashCount:  r.HashCount,
				Signature:  r.Signature,
			})
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("batch insert references: %w", err)
			}
		}

		for _, r := range refs {
			for pos, item := range r.MediaItems {
				row := mediaItemRow{ReferenceID: r.ID, Position: pos}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("creating media item: %w", err)
				}

				props := make([]propertyRow, 0, item.Len())
				for _, key := range item.Keys() {
					v, _ := item.Get(key)
					props = append(props, propertyRow{MediaItemID: row.ID, Key: string(key), Value: v})
				}
				if len(props) > 0 {
					if err := tx.CreateInBatches(props, 500).Error; err != nil {
						return fmt.Errorf("batch insert properties: %w", err)
					}
				}
			}
		}
		return nil
	})
}

func (s *store) read() (catalogInfo, []storedReference, error) {
	var info catalogInfo
	if err := s.db.First(&info).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return info, nil, ErrNotCatalogFile
		}
		return info, nil, fmt.Errorf("reading catalog header: %w", err)
	}

	var rows []referenceRow
	if err := s.db.Order("position").Find(&rows).Error; err != nil {
		return info, nil, fmt.Errorf("reading references: %w", err)
	}

	var items []mediaItemRow
	if err := s.db.Order("reference_id, position").Find(&items).Error; err != nil {
		return info, nil, fmt.Errorf("reading media items: %w", err)
	}

	var props []propertyRow
	if err := s.db.Find(&props).Error; err != nil {
		return info, nil, fmt.Errorf("reading properties: %w", err)
	}

	propsByItem := make(map[uint]models.MediaItemProperties)
	for _, p := range props {
		m, ok := propsByItem[p.MediaItemID]
		if !ok {
			m = make(models.MediaItemProperties)
			propsByItem[p.MediaItemID] = m
		}
		m[models.MediaItemProperty(p.Key)] = p.Value
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ReferenceID == items[j].ReferenceID {
			return items[i].Position < items[j].Position
		}
		return items[i].ReferenceID < items[j].ReferenceID
	})
	itemsByRef := make(map[string][]models.MediaItem)
	for _, it := range items {
		itemsByRef[it.ReferenceID] = append(itemsByRef[it.ReferenceID], models.NewMediaItem(propsByItem[it.ID]))
	}

	refs := make([]storedReference, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, storedReference{
			ID:         r.ID,
			DurationMs: r.DurationMs,
			HashCount:  r.HashCount,
			Signature:  r.Signature,
			MediaItems: itemsByRef[r.ID],
		})
	}
	return info, refs, nil
}
