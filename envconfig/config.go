// config.go - Haupt-Konfigurationsfunktionen fuer quantkit
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (QUANTKIT_DEBUG)
// - HistogramBins: Gibt Histogramm-Aufloesung zurueck (QUANTKIT_HISTOGRAM_BINS)
// - PlatformModel: Gibt Pfad zum Standard-Plattformmodell zurueck (QUANTKIT_TPC)
// - MaxCalibrationBatches: Gibt Batch-Limit der Kalibrierung zurueck (QUANTKIT_MAX_BATCHES)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via QUANTKIT_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("QUANTKIT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// PlatformModel gibt den Pfad zum Standard-Plattformmodell zurueck
// Konfigurierbar via QUANTKIT_TPC
// Default: "" (eingebautes Default-Modell)
func PlatformModel() string {
	return Var("QUANTKIT_TPC")
}

var (
	// HistogramBins gibt die Histogramm-Aufloesung der Kalibrierung zurueck
	// Konfigurierbar via QUANTKIT_HISTOGRAM_BINS
	// Default: 0 (Paket-Default der Kalibrierung)
	HistogramBins = Uint("QUANTKIT_HISTOGRAM_BINS", 0)

	// MaxCalibrationBatches begrenzt die Anzahl der Kalibrierungs-Batches
	// Konfigurierbar via QUANTKIT_MAX_BATCHES
	// Default: 0 (unbegrenzt)
	MaxCalibrationBatches = Uint("QUANTKIT_MAX_BATCHES", 0)
)

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
