// Package mockdata generates the synthetic population served in degraded mode.
package mockdata

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"devrank/models"
)

var base = []models.ProfileDetail{
	{
		Login: "tharith-p", ID: 101, HTMLURL: "https://github.com/tharith-p",
		Name: "Tharith Pangs", Company: "GitRanked KH", Blog: "https://gitranked.kh",
		Location: "Phnom Penh, Cambodia", Bio: "Full stack developer passionate about React and Node.js.",
		PublicRepos: 45, PublicGists: 12, Followers: 1205, Following: 110,
		CreatedAt: time.Date(2018, 1, 15, 10, 20, 30, 0, time.UTC), RecentActivityCount: models.IntPtr(342),
	},
	{
		Login: "sopheak-dev", ID: 102, HTMLURL: "https://github.com/sopheak-dev",
		Name: "Sopheak", Company: "KhmerCode",
		Location: "Siem Reap, Cambodia", Bio: "Open source contributor. Rust enthusiast.",
		PublicRepos: 82, PublicGists: 5, Followers: 890, Following: 45,
		CreatedAt: time.Date(2019, 5, 10, 8, 0, 0, 0, time.UTC), RecentActivityCount: models.IntPtr(156),
	},
	{
		Login: "vireak-codes", ID: 103, HTMLURL: "https://github.com/vireak-codes",
		Name: "Vireak Roth", Company: "StartUp Inc",
		Location: "Cambodia", Bio: "Building the future of tech in SEA.",
		PublicRepos: 24, PublicGists: 2, Followers: 650, Following: 300,
		CreatedAt: time.Date(2020, 3, 22, 14, 15, 0, 0, time.UTC), RecentActivityCount: models.IntPtr(420),
	},
	{
		Login: "dara-js", ID: 104, HTMLURL: "https://github.com/dara-js",
		Name: "Dara Ly",
		Location: "Battambang, Cambodia", Bio: "JavaScript all the way.",
		PublicRepos: 112, PublicGists: 20, Followers: 430, Following: 12,
		CreatedAt: time.Date(2016, 11, 2, 9, 30, 0, 0, time.UTC), RecentActivityCount: models.IntPtr(45),
	},
	{
		Login: "bopha-design", ID: 105, HTMLURL: "https://github.com/bopha-design",
		Name: "Bopha Chan", Company: "Creative Studio", Blog: "https://bopha.design",
		Location: "Phnom Penh", Bio: "Frontend Engineer & UI Designer.",
		PublicRepos: 18, PublicGists: 1, Followers: 340, Following: 80,
		CreatedAt: time.Date(2021, 1, 5, 11, 0, 0, 0, time.UTC), RecentActivityCount: models.IntPtr(12),
	},
}

var (
	companies  = []string{"Freelance", "TechKhmer", "StartupKH", "AngkorDev", "MekongSoft", "Smart Axiata", ""}
	locations  = []string{"Phnom Penh", "Siem Reap", "Battambang", "Kampot", "Sihanoukville", "Cambodia"}
	firstNames = []string{"Chan", "Sok", "Dara", "Vireak", "Srey", "Piseth", "Rithy", "Nary", "Bona", "Sophea"}
	lastNames  = []string{"Heng", "Lim", "Ng", "Chea", "Ly", "Keo", "Ouk", "Seng", "Mao", "Sok"}
)

// maxAccountAge bounds the randomized creation time of generated accounts
const maxAccountAge = 100_000_000 * time.Second

// Dataset is a read-only synthetic population
type Dataset struct {
	users      []models.ProfileDetail
	totalCount int
}

// Generate builds count profiles from seed. The same seed and now always
// produce the same dataset.
func Generate(seed uint64, count int, now time.Time) []models.ProfileDetail {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	users := make([]models.ProfileDetail, 0, max(count, len(base)))
	for _, u := range base {
		u.AvatarURL = fmt.Sprintf("https://picsum.photos/200/200?random=%d", u.ID-100)
		u.ActivitySource = models.ActivitySynthetic
		users = append(users, u)
	}

	for i := len(users); i < count; i++ {
		template := base[i%len(base)]
		name := firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))]
		login := fmt.Sprintf("%s%d", strings.ReplaceAll(strings.ToLower(name), " ", "-"), rng.IntN(1000))

		activity := 0
		if template.RecentActivityCount != nil {
			activity = int(float64(*template.RecentActivityCount) * (0.2 + rng.Float64()*2.5))
		}

		u := template
		u.ID = int64(2000 + i)
		u.Login = login
		u.Name = name
		u.HTMLURL = "https://github.com/" + login
		u.AvatarURL = fmt.Sprintf("https://picsum.photos/200/200?random=%d", i+10)
		u.Followers = int(float64(template.Followers) * (0.1 + rng.Float64()*0.8))
		u.PublicRepos = int(float64(template.PublicRepos) * (0.2 + rng.Float64()*1.5))
		u.RecentActivityCount = models.IntPtr(activity)
		u.ActivitySource = models.ActivitySynthetic
		u.Company = companies[rng.IntN(len(companies))]
		u.Location = locations[rng.IntN(len(locations))]
		u.CreatedAt = now.Add(-time.Duration(rng.Int64N(int64(maxAccountAge)))).UTC().Truncate(time.Second)
		users = append(users, u)
	}

	return users
}

// New wraps a generated population with the total count reported in degraded mode
func New(seed uint64, count, totalCount int, now time.Time) *Dataset {
	users := Generate(seed, count, now)
	return &Dataset{users: users, totalCount: max(totalCount, len(users))}
}

// Users returns a copy of the population so callers may sort it freely
func (d *Dataset) Users() []models.ProfileDetail {
	out := make([]models.ProfileDetail, len(d.users))
	copy(out, d.users)
	return out
}

// TotalCount is the match count reported alongside synthetic results
func (d *Dataset) TotalCount() int {
	return d.totalCount
}

var (
	defaultOnce    sync.Once
	defaultDataset *Dataset
)

// Default returns the process-wide dataset, generated once from the wall clock
func Default() *Dataset {
	defaultOnce.Do(func() {
		now := time.Now()
		defaultDataset = New(uint64(now.UnixNano()), 50, 500, now)
	})
	return defaultDataset
}
