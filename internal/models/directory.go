package models

// The directory tables are owned by the catalogue service. Quick-Match only reads them.

type Category struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null"`
}

// TableName specifies the table name
func (Category) TableName() string {
	return "categories"
}

type Business struct {
	ID        uint     `json:"id" gorm:"primaryKey"`
	Name      string   `json:"name" gorm:"not null"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
	LogoKey   string   `json:"-"`
	Rating    float64  `json:"rating"`
}

// TableName specifies the table name
func (Business) TableName() string {
	return "businesses"
}

type Service struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	BusinessID uint   `json:"businessId" gorm:"not null;index"`
	CategoryID uint   `json:"categoryId" gorm:"not null;index"`
	Name       string `json:"name" gorm:"not null"`
	Price      int64  `json:"price" gorm:"not null"`
	Active     bool   `json:"active" gorm:"not null"`
}

// TableName specifies the table name
func (Service) TableName() string {
	return "services"
}
