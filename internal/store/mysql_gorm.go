package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	// 建表/补列。上线环境可以换成手工迁移，开发期够用
	if err := db.AutoMigrate(&SessionRow{}, &BatchRow{}, &EventRow{}, &SnapshotRow{}); err != nil {
		return nil, err
	}
	return db, nil
}
