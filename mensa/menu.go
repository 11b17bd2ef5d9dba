package mensa

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Menu is one snapshot of the canteen's togo menu.
type Menu struct {
	Name string
	Days []MenuDay
}

// MenuDay lists the meals offered on one day. DisplayDate is the
// backend's own rendering and is sent back verbatim when ordering.
type MenuDay struct {
	IsoDate     string
	DisplayDate string
	Meals       []MenuItem
}

// MenuItem is a single meal. Hash is the selection key shown to users;
// the remaining fields are carried for order submission.
type MenuItem struct {
	Category    string
	Title       string
	Description string
	Hash        string

	ArticleID      string
	KennzRest      string
	RawTitle       string
	RawDescription string
	Price1         string
	Price2         string
	Price3         string
	TogoPrice      string
}

// Name is the meal title followed by its description.
func (m MenuItem) Name() string {
	return m.Title + " " + m.Description
}

// CombinedName prefixes the meal with its category, as shown on buttons.
func (m MenuItem) CombinedName() string {
	return m.Category + ": " + m.Title + m.Description
}

// Dates returns the iso dates of all days in menu order.
func (m *Menu) Dates() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Days))
	for _, d := range m.Days {
		out = append(out, d.IsoDate)
	}
	return out
}

// Day finds the day with the given iso date.
func (m *Menu) Day(isoDate string) (*MenuDay, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.Days {
		if m.Days[i].IsoDate == isoDate {
			return &m.Days[i], true
		}
	}
	return nil, false
}

// Meal finds the meal with the given hash.
func (d *MenuDay) Meal(hash string) (*MenuItem, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Meals {
		if d.Meals[i].Hash == hash {
			return &d.Meals[i], true
		}
	}
	return nil, false
}

type wireMenu struct {
	Name   string     `json:"mensaname"`
	Result *[]wireDay `json:"result"`
}

type wireDay struct {
	Tag struct {
		IsoDate     string `json:"datum_iso"`
		DisplayDate string `json:"tag_formatiert2"`
	} `json:"tag"`
	Meals []wireMeal `json:"essen"`
}

type wireMeal struct {
	TitleClean       string `json:"title_clean"`
	DescriptionClean string `json:"description_clean"`
	Category         string `json:"category"`
	MD5              string `json:"md5"`
	Attributes       struct {
		ArticleID string `json:"artikelId"`
	} `json:"attributes"`
	KennzRest   string `json:"kennzRest"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price1      string `json:"preis1"`
	Price2      string `json:"preis2"`
	Price3      string `json:"preis3"`
	TogoPrice   string `json:"preis_formated_Togo"`
}

func decodeMenu(op string, body []byte) (*Menu, error) {
	var w wireMenu
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, formatError(op, err, "decode menu")
	}
	if w.Result == nil {
		return nil, formatError(op, nil, "menu without result")
	}
	menu := &Menu{Name: w.Name, Days: make([]MenuDay, 0, len(*w.Result))}
	for i, wd := range *w.Result {
		if wd.Tag.IsoDate == "" {
			return nil, formatError(op, nil, "day %d without datum_iso", i)
		}
		day := MenuDay{
			IsoDate:     wd.Tag.IsoDate,
			DisplayDate: wd.Tag.DisplayDate,
			Meals:       make([]MenuItem, 0, len(wd.Meals)),
		}
		for j, wm := range wd.Meals {
			if wm.MD5 == "" {
				return nil, formatError(op, nil, "meal %d of %s without md5", j, wd.Tag.IsoDate)
			}
			day.Meals = append(day.Meals, MenuItem{
				Category:       wm.Category,
				Title:          wm.TitleClean,
				Description:    wm.DescriptionClean,
				Hash:           wm.MD5,
				ArticleID:      wm.Attributes.ArticleID,
				KennzRest:      wm.KennzRest,
				RawTitle:       wm.Title,
				RawDescription: wm.Description,
				Price1:         wm.Price1,
				Price2:         wm.Price2,
				Price3:         wm.Price3,
				TogoPrice:      wm.TogoPrice,
			})
		}
		menu.Days = append(menu.Days, day)
	}
	return menu, nil
}

func (c *Client) menuURL() string {
	q := url.Values{}
	q.Set("mensa_id", strconv.Itoa(c.opts.MensaID))
	q.Set("json", "1")
	q.Set("hyp", "1")
	q.Set("now", strconv.FormatInt(c.opts.Now().UnixMilli(), 10))
	q.Set("mode", "togo")
	q.Set("lang", c.opts.Language)
	return c.opts.BaseURL + "/getdata.php?" + q.Encode()
}

// FetchMenu loads the menu over a fresh Session. The Session must be kept
// by whoever wants to submit an order against this snapshot.
func (c *Client) FetchMenu(ctx context.Context) (*Session, *Menu, error) {
	const op = "menu"
	sess, err := c.newSession()
	if err != nil {
		return nil, nil, err
	}
	var menu *Menu
	err = c.withRetry(ctx, op, func() error {
		req, err := http.NewRequest(http.MethodGet, c.menuURL(), http.NoBody)
		if err != nil {
			return &Error{Kind: KindRemoteUnavailable, Op: op, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		body, err := c.send(ctx, sess.client, op, req)
		if err != nil {
			return err
		}
		menu, err = decodeMenu(op, body)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	c.log.LogAttrs(ctx, slog.LevelDebug, "menu fetched",
		slog.String("event", "mensa.menu"),
		slog.String("mensa", menu.Name),
		slog.Int("days", len(menu.Days)),
		slog.Int("cookies", len(sess.Cookies(c.opts.BaseURL))),
	)
	return sess, menu, nil
}
