package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/playarena/credit_engine/internal/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Imports game templates and credit packs from an xlsx workbook.
// Sheet "templates": name | min_wager | max_wager | active
// Sheet "packs":     name | credits   | price     | active
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if len(os.Args) < 2 {
		log.Fatal("usage: import_catalog <workbook.xlsx>")
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"), os.Getenv("DB_PORT"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database:", err)
	}

	f, err := excelize.OpenFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	imported := 0

	if rows, err := f.GetRows("templates"); err == nil {
		for i, row := range rows {
			if i == 0 || len(row) < 4 { // skip header or invalid rows
				continue
			}

			template := models.GameTemplate{
				Name:     row[0],
				MinWager: parseInt64(row[1]),
				MaxWager: parseInt64(row[2]),
				Active:   row[3] == "yes" || row[3] == "true" || row[3] == "1",
			}

			var existing models.GameTemplate
			if err := db.Where("name = ?", template.Name).First(&existing).Error; err == gorm.ErrRecordNotFound {
				if err := db.Create(&template).Error; err != nil {
					fmt.Printf("failed to import template %s: %v\n", template.Name, err)
					continue
				}
				imported++
			}
		}
	}

	if rows, err := f.GetRows("packs"); err == nil {
		for i, row := range rows {
			if i == 0 || len(row) < 4 {
				continue
			}

			pack := models.CreditPack{
				Name:    row[0],
				Credits: parseInt64(row[1]),
				Price:   parseInt64(row[2]),
				Active:  row[3] == "yes" || row[3] == "true" || row[3] == "1",
			}

			var existing models.CreditPack
			if err := db.Where("name = ?", pack.Name).First(&existing).Error; err == gorm.ErrRecordNotFound {
				if err := db.Create(&pack).Error; err != nil {
					fmt.Printf("failed to import pack %s: %v\n", pack.Name, err)
					continue
				}
				imported++
			}
		}
	}

	fmt.Printf("Imported %d catalog rows\n", imported)
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
