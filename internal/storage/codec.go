package storage

import (
	"encoding/json"
	"errors"

	"creaturelab/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// EncodeRun stamps unversioned records with the current versions.
func EncodeRun(run model.SavedRun) ([]byte, error) {
	if run.VersionedRecord == (model.VersionedRecord{}) {
		run.VersionedRecord = currentVersion()
	}
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.SavedRun, error) {
	var run model.SavedRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.SavedRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.SavedRun{}, err
	}
	return run, nil
}

func EncodeGeneration(record model.GenerationRecord) ([]byte, error) {
	if record.VersionedRecord == (model.VersionedRecord{}) {
		record.VersionedRecord = currentVersion()
	}
	return json.Marshal(record)
}

func DecodeGeneration(data []byte) (model.GenerationRecord, error) {
	var record model.GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.GenerationRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.GenerationRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
