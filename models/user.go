package models

import (
    "gorm.io/gorm"
)

type User struct {
    gorm.Model
    Email    string `gorm:"uniqueIndex;not null"`
    Password string `gorm:"not null"`
    FullName string
    // IANA zone name ("Asia/Tokyo"). The daily chat quota is counted over
    // the user's local day; empty means UTC.
    Timezone string
}
