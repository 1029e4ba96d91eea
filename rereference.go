package nsxfile

import "fmt"

// ReferenceGrouping selects which loaded channels share a common average
// when re-referencing.
type ReferenceGrouping int

const (
	// GroupGlobal averages across every loaded channel.
	GroupGlobal ReferenceGrouping = iota

	// GroupByBank averages within channels sharing an electrode
	// connector bank, so a noisy headstage only affects its own bank.
	GroupByBank
)

// CommonAverageReference recenters the loaded sample matrices in place by
// subtracting, at each sample, the mean across each channel group. It
// consumes already-loaded data and does not touch the file.
func CommonAverageReference(data *LoadedData, electrodes []ElectrodeDescriptor, grouping ReferenceGrouping) error {
	if data == nil || len(data.Segments) == 0 {
		return ErrNoDataLoaded
	}

	groups, err := referenceGroups(data.Channels, electrodes, grouping)
	if err != nil {
		return err
	}

	for _, m := range data.Segments {
		_, cols := m.Dims()
		for _, rows := range groups {
			if len(rows) < 2 {
				continue
			}
			for c := 0; c < cols; c++ {
				var mean float64
				for _, r := range rows {
					mean += m.At(r, c)
				}
				mean /= float64(len(rows))
				for _, r := range rows {
					m.Set(r, c, m.At(r, c)-mean)
				}
			}
		}
	}
	return nil
}

// referenceGroups maps each group label to the matrix row indices of its
// loaded channels.
func referenceGroups(channels []int, electrodes []ElectrodeDescriptor, grouping ReferenceGrouping) (map[string][]int, error) {
	groups := make(map[string][]int)
	for row, ch := range channels {
		key := ""
		if grouping == GroupByBank {
			if len(electrodes) < ch {
				return nil, fmt.Errorf("nsxfile: no electrode descriptor for channel %d", ch)
			}
			key = electrodes[ch-1].ConnectorBank
		}
		groups[key] = append(groups[key], row)
	}
	return groups, nil
}
