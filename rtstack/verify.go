package rtstack

import (
	"fmt"

	"github.com/achilleasa/rtstack/bitfield"
	"github.com/achilleasa/rtstack/hwgen"
)

func init() {
	if err := Verify(); err != nil {
		panic(err)
	}
}

// Verify checks the field tables of every generation: fields must not
// overlap or leave their record, aliases must stay inside the field they
// alias and every hit and ray field the container relies on must be present.
func Verify() error {
	if len(hitLayouts) != len(hwgen.All()) || len(rayLayouts) != len(hwgen.All()) {
		return fmt.Errorf("rtstack: layout tables cover %d/%d generations; expected %d", len(hitLayouts), len(rayLayouts), len(hwgen.All()))
	}

	for _, gen := range hwgen.All() {
		hit := hitLayout(gen)
		if err := bitfield.CheckDisjoint(HitRecordSize, hit.All()...); err != nil {
			return fmt.Errorf("rtstack: %s hit record: %w", gen, err)
		}
		for _, f := range []bitfield.Field{hit.T, hit.U, hit.V, hit.Valid, hit.LeafType, hit.BVHLevel, hit.Done, hit.PrimLeafPtr, hit.InstLeafPtr} {
			if !f.Present() {
				return fmt.Errorf("rtstack: %s hit record lacks field %s", gen, f.Name)
			}
		}
		if hit.PrimLeafPtr.Width != hit.InstLeafPtr.Width {
			return fmt.Errorf("rtstack: %s hit record leaf pointers differ in width", gen)
		}

		ray := rayLayout(gen)
		if err := bitfield.CheckDisjoint(RayRecordSize, ray.All()...); err != nil {
			return fmt.Errorf("rtstack: %s ray record: %w", gen, err)
		}
		if err := checkAlias(ray.RayFlagsAlias, ray.RayFlags); err != nil {
			return fmt.Errorf("rtstack: %s ray record: %w", gen, err)
		}
		if err := checkAlias(ray.ShaderRayFlagsAlias, ray.InstLeafPtr); err != nil {
			return fmt.Errorf("rtstack: %s ray record: %w", gen, err)
		}
	}

	for name, layout := range map[string]*[TraversalStackSlots]slotFields{"canonical": &canonicalSlots, "legacy": &legacySlots} {
		var fields []bitfield.Field
		for _, slot := range layout {
			fields = append(fields, slot.all()...)
		}
		if err := bitfield.CheckDisjoint(TraversalStackEntrySize, fields...); err != nil {
			return fmt.Errorf("rtstack: %s traversal stack entry: %w", name, err)
		}
	}

	for _, levels := range []int{1, hwgen.SyncStackBVHLevels, hwgen.MaxBVHLevels} {
		if end := TraversalEntryOffset(levels, levels); end != StackSize(SyncStack, levels) {
			return fmt.Errorf("rtstack: %d level sync stack ends at %d; expected %d", levels, end, StackSize(SyncStack, levels))
		}
	}

	return nil
}

// An alias must cover bits that belong to the aliased field.
func checkAlias(alias, field bitfield.Field) error {
	alo, ahi := alias.Span()
	flo, fhi := field.Span()
	if alo < flo || ahi > fhi {
		return fmt.Errorf("alias %s [%d, %d) escapes field %s [%d, %d)", alias.Name, alo, ahi, field.Name, flo, fhi)
	}
	if err := bitfield.CheckDisjoint(RayRecordSize, alias); err != nil {
		return err
	}
	return nil
}
