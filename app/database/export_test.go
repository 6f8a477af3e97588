package database

var NewGormLogger = newGormLogger
