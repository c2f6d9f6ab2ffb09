package mode

// A subset of the VESA DMT mode table plus the common CEA-861 entries,
// enough for drivers that cannot probe an EDID.
var dmtModes = []Info{
	New("640x480", TypeDriver, 25175, 640, 656, 752, 800, 0, 480, 490, 492, 525, 0, FlagNHSync|FlagNVSync),
	New("800x600", TypeDriver, 40000, 800, 840, 968, 1056, 0, 600, 601, 605, 628, 0, FlagPHSync|FlagPVSync),
	New("1024x768", TypeDriver, 65000, 1024, 1048, 1184, 1344, 0, 768, 771, 777, 806, 0, FlagNHSync|FlagNVSync),
	New("1280x720", TypeDriver, 74250, 1280, 1390, 1430, 1650, 0, 720, 725, 730, 750, 0, FlagPHSync|FlagPVSync),
	New("1280x1024", TypeDriver, 108000, 1280, 1328, 1440, 1688, 0, 1024, 1025, 1028, 1066, 0, FlagPHSync|FlagPVSync),
	New("1440x900", TypeDriver, 106500, 1440, 1520, 1672, 1904, 0, 900, 903, 909, 934, 0, FlagNHSync|FlagPVSync),
	New("1600x900", TypeDriver, 108000, 1600, 1624, 1704, 1800, 0, 900, 901, 904, 1000, 0, FlagPHSync|FlagPVSync),
	New("1680x1050", TypeDriver, 146250, 1680, 1784, 1960, 2240, 0, 1050, 1053, 1059, 1089, 0, FlagNHSync|FlagPVSync),
	New("1920x1080", TypeDriver|TypePreferred, 148500, 1920, 2008, 2052, 2200, 0, 1080, 1084, 1089, 1125, 0, FlagPHSync|FlagPVSync),
	New("2560x1440", TypeDriver, 241500, 2560, 2608, 2640, 2720, 0, 1440, 1443, 1448, 1481, 0, FlagPHSync|FlagNVSync),
}

// AddDMTModes appends every table entry that fits within maxWidth by
// maxHeight to supported and returns the extended list.
func AddDMTModes(supported []Info, maxWidth, maxHeight uint32) []Info {
	for _, m := range dmtModes {
		if uint32(m.Hdisplay) > maxWidth || uint32(m.Vdisplay) > maxHeight {
			continue
		}
		supported = append(supported, m)
	}
	return supported
}
