package domain

type QuotaInfo struct {
	TotalSpace     int64   `json:"total_space"`
	UsedSpace      int64   `json:"used_space"`
	AvailableSpace int64   `json:"available_space"`
	UsagePercent   float64 `json:"usage_percent"`
}

func NewQuotaInfo(u *User) *QuotaInfo {
	info := &QuotaInfo{
		TotalSpace:     u.DiskSpace,
		UsedSpace:      u.UsedSpace,
		AvailableSpace: u.DiskSpace - u.UsedSpace,
	}
	if u.DiskSpace > 0 {
		info.UsagePercent = float64(u.UsedSpace) / float64(u.DiskSpace) * 100
	}
	return info
}
