package store

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/schedule"
)

// LoadReport summarizes what Load or ImportLegacy changed.
type LoadReport struct {
	Groups      int
	Profiles    int
	Migrated    []string
	Repaired    []string
	Quarantined []string
}

// Load reads all records into memory, migrating older layouts and repairing
// malformed data. Records that cannot be decoded at all are quarantined.
func (s *Store) Load() (LoadReport, error) {
	var report LoadReport

	s.mu.Lock()
	defer s.mu.Unlock()

	s.groupCache = make(map[string]schedule.Group)
	s.profCache = make(map[string]schedule.Profile)
	s.entityIndex = make(map[string]string)

	settings, version, err := s.settings.Get(settingsID)
	if err != nil {
		s.quarantineLocked(kindSettings, settingsID, &report)
		settings, version = schedule.DefaultSettings(), 0
	}
	if version == 0 || settings.Validate() != nil {
		settings = schedule.DefaultSettings()
	}
	s.settingsVal = settings

	profiles, broken, err := s.profiles.GetAll()
	if err != nil {
		return report, fmt.Errorf("failed to load profiles: %w", err)
	}
	for id := range broken {
		s.quarantineLocked(kindProfile, id, &report)
	}
	for _, name := range sortedKeys(profiles) {
		p, res := profiles[name].toProfile(name)
		s.profCache[name] = p
		if s.noteLocked(kindProfile, name, res, &report) {
			if err := s.saveProfileLocked(p); err != nil {
				return report, err
			}
		}
	}

	groups, broken, err := s.groups.GetAll()
	if err != nil {
		return report, fmt.Errorf("failed to load groups: %w", err)
	}
	for id := range broken {
		s.quarantineLocked(kindGroup, id, &report)
	}
	for _, name := range sortedKeys(groups) {
		if err := s.loadGroupLocked(name, groups[name], &report); err != nil {
			return report, err
		}
	}

	report.Groups = len(s.groupCache)
	report.Profiles = len(s.profCache)
	log.Info().
		Int("groups", report.Groups).
		Int("profiles", report.Profiles).
		Int("migrated", len(report.Migrated)).
		Int("repaired", len(report.Repaired)).
		Int("quarantined", len(report.Quarantined)).
		Msg("Schedule store loaded")
	return report, nil
}

// loadGroupLocked converts one record, hoists its legacy per-group profiles
// into global ones, and enforces the enabled-group invariant.
func (s *Store) loadGroupLocked(name string, rec groupRecord, report *LoadReport) error {
	g, res := rec.toGroup(name)

	for _, pname := range sortedKeys(rec.Profiles) {
		global := name + ":" + pname
		if _, exists := s.profCache[global]; exists {
			continue
		}
		p, pres := rec.Profiles[pname].toProfile(global)
		p.Legacy = true
		p.Origin = name
		res.repairs = append(res.repairs, pres.repairs...)
		if err := s.saveProfileLocked(p); err != nil {
			return err
		}
		res.migrated = true
	}
	if len(rec.Profiles) > 0 {
		// Legacy groups kept the active profile's nodes in their own schedule.
		g.ActiveProfile = ""
	}

	if g.ActiveProfile != "" {
		if _, ok := s.profCache[g.ActiveProfile]; !ok {
			res.repair("active profile %q does not exist", g.ActiveProfile)
			g.ActiveProfile = ""
		}
	}

	// An entity belongs to at most one group; first group by name wins.
	kept := g.Entities[:0]
	for _, e := range g.Entities {
		if owner, taken := s.entityIndex[e]; taken {
			res.repair("entity %q already in group %q", e, owner)
			continue
		}
		kept = append(kept, e)
	}
	g.Entities = kept

	if g.Enabled {
		eff := s.effectiveLocked(g)
		if eff.CheckComplete() != nil {
			if g.ActiveProfile == "" {
				g.Schedule.SeedMissing()
			}
			if err := s.effectiveLocked(g).CheckComplete(); err != nil {
				res.repair("disabled: %v", err)
				g.Enabled = false
			}
		}
	}

	s.putGroupLocked(g)
	if s.noteLocked(kindGroup, name, res, report) {
		if err := s.saveGroupLocked(g); err != nil {
			return err
		}
	}
	return nil
}

// noteLocked records repairs and migration in the report, returning whether
// the record needs rewriting.
func (s *Store) noteLocked(kind, id string, res decodeResult, report *LoadReport) bool {
	for _, r := range res.repairs {
		log.Warn().Str("kind", kind).Str("id", id).Str("repair", r).Msg("Repaired stored record")
	}
	if len(res.repairs) > 0 {
		report.Repaired = append(report.Repaired, kind+"/"+id)
	}
	if res.migrated {
		report.Migrated = append(report.Migrated, kind+"/"+id)
	}
	return res.migrated || len(res.repairs) > 0
}

func (s *Store) quarantineLocked(kind, id string, report *LoadReport) {
	payload, _, err := s.base.Get(kind, id)
	if err != nil || payload == nil {
		return
	}
	if err := s.base.Set(kindQuarantine, kind+"/"+id, payload); err != nil {
		log.Error().Err(err).Str("kind", kind).Str("id", id).Msg("Failed to quarantine record")
		return
	}
	if err := s.base.Delete(kind, id); err != nil {
		log.Error().Err(err).Str("kind", kind).Str("id", id).Msg("Failed to remove quarantined record")
	}
	log.Warn().Str("kind", kind).Str("id", id).Msg("Quarantined undecodable record")
	report.Quarantined = append(report.Quarantined, kind+"/"+id)
}

// legacyDocument is the single-document layout of older installations.
type legacyDocument struct {
	Entities map[string]legacyEntity `json:"entities"`
	Groups   map[string]groupRecord  `json:"groups"`
	Settings *schedule.Settings      `json:"settings"`
}

type legacyEntity struct {
	Nodes   []json.RawMessage `json:"nodes"`
	Enabled *bool             `json:"enabled"`
}

// ImportLegacy loads a legacy JSON document. Groups are imported as-is;
// entities outside any group become single-entity groups. Existing records
// with the same name are overwritten.
func (s *Store) ImportLegacy(data []byte) (LoadReport, error) {
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return LoadReport{}, fmt.Errorf("failed to parse legacy document: %w", err)
	}

	members := make(map[string]bool)
	for _, g := range doc.Groups {
		for _, e := range g.Entities {
			members[e] = true
		}
	}

	for _, name := range sortedKeys(doc.Groups) {
		rec := doc.Groups[name]
		rec.Version = 0
		if err := s.groups.Set(name, rec); err != nil {
			return LoadReport{}, fmt.Errorf("failed to import group %q: %w", name, err)
		}
	}
	for _, id := range sortedKeys(doc.Entities) {
		if members[id] {
			continue
		}
		ent := doc.Entities[id]
		rec := groupRecord{
			Entities:     []string{id},
			Enabled:      ent.Enabled,
			Nodes:        ent.Nodes,
			SingleEntity: true,
		}
		if err := s.groups.Set(schedule.SingleEntityGroupName(id), rec); err != nil {
			return LoadReport{}, fmt.Errorf("failed to import entity %q: %w", id, err)
		}
	}
	if doc.Settings != nil && doc.Settings.Validate() == nil {
		if err := s.settings.Set(settingsID, *doc.Settings); err != nil {
			return LoadReport{}, fmt.Errorf("failed to import settings: %w", err)
		}
	}

	report, err := s.Load()
	if err != nil {
		return report, err
	}
	s.publish(Change{Kind: ChangeReset})
	return report, nil
}
