package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      id,
                      start_time,
                      source,
                      protocol,
                      config)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    source,
    protocol,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    source,
    protocol,
    config
FROM sessions
ORDER BY start_time`

	deleteSensorsSQL = `DELETE FROM sensors`

	insertSensorSQL = `
INSERT INTO sensors (
                     slot,
                     definition,
                     updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)`

	selectSensorsSQL = `
SELECT
    slot,
    definition
FROM sensors
ORDER BY slot`

	insertReadingSQL = `
INSERT INTO readings (
                      session_id,
                      timestamp,
                      slot,
                      sensor_id,
                      instance,
                      label,
                      unit,
                      precision,
                      value,
                      value_min,
                      value_max,
                      old,
                      latitude,
                      longitude)
VALUES `

	readingPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	selectReadingsSQL = `
SELECT
    timestamp,
    slot,
    sensor_id,
    instance,
    label,
    unit,
    precision,
    value,
    value_min,
    value_max,
    old,
    latitude,
    longitude
FROM readings
WHERE
    session_id = ?
    AND (? IS NULL OR slot = ?)
    AND (? IS NULL OR timestamp >= ?)
    AND (? IS NULL OR timestamp <= ?)
ORDER BY timestamp, slot`
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)
