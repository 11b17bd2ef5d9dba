package mensa

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lucsky/cuid"
)

// Profile identifies the person an order is placed for.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Confirmation is the backend's answer to an order. The backend has no
// structured status, so any 2xx body counts as success.
type Confirmation struct {
	Body    string
	DryRun  bool
	Attempt string

	Meal MenuItem
	Slot Slot
}

// Summary returns the visible text of the response body with whitespace
// collapsed.
func (c *Confirmation) Summary() string {
	if c == nil || strings.TrimSpace(c.Body) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.Body))
	if err != nil {
		return strings.Join(strings.Fields(c.Body), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// SubmitOrder places an order for the meal with mealHash on isoDate at the
// first slot whose label starts with slotLabel. The menu is fetched again
// and the order is sent over that fetch's Session. The order POST is
// attempted exactly once; with DryRun it is skipped.
func (c *Client) SubmitOrder(ctx context.Context, isoDate, mealHash string, profile Profile, slotLabel string) (*Confirmation, error) {
	const op = "order"
	attempt := cuid.New()
	log := c.log.With(slog.String("attempt_id", attempt))

	sess, menu, err := c.FetchMenu(ctx)
	if err != nil {
		return nil, err
	}
	day, ok := menu.Day(isoDate)
	if !ok {
		return nil, newError(KindDayNotFound, op, isoDate)
	}
	meal, ok := day.Meal(mealHash)
	if !ok {
		return nil, newError(KindMealNotFound, op, mealHash)
	}

	slots, err := c.FetchFreeSlots(ctx, profile.Email, isoDate)
	if err != nil {
		return nil, err
	}
	slot, ok := slots.Match(slotLabel)
	if !ok {
		return nil, newError(KindSlotNotFound, op, slotLabel)
	}
	if slot.Free <= 0 {
		return nil, newError(KindSlotFull, op, slot.Label)
	}

	form := buildOrderForm(menu.Name, c.opts.MensaID, day, meal, profile, slot.Label)
	conf := &Confirmation{DryRun: c.opts.DryRun, Attempt: attempt, Meal: *meal, Slot: slot}
	if c.opts.DryRun {
		log.LogAttrs(ctx, slog.LevelInfo, "order skipped",
			slog.String("event", "mensa.order"),
			slog.String("outcome", "ok"),
			slog.Bool("dry_run", true),
			slog.String("iso_date", isoDate),
			slog.String("meal", meal.Hash),
			slog.String("slot", slot.Label),
		)
		return conf, nil
	}

	req, err := http.NewRequest(http.MethodPost, c.orderURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindRemoteUnavailable, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.send(ctx, sess.client, op, req)
	if err != nil {
		return nil, err
	}
	conf.Body = string(body)

	log.LogAttrs(ctx, slog.LevelInfo, "order placed",
		slog.String("event", "mensa.order"),
		slog.String("outcome", "ok"),
		slog.String("iso_date", isoDate),
		slog.String("meal", meal.Hash),
		slog.String("slot", slot.Label),
	)
	return conf, nil
}

func (c *Client) orderURL() string {
	return c.opts.BaseURL + "/setDataMensaTogo.php?order=add&language=" + url.QueryEscape(c.opts.Language)
}

// buildOrderForm renders the add-to-basket form. basket_html is plain
// interpolation; the backend expects it unescaped.
func buildOrderForm(mensaName string, mensaID int, day *MenuDay, meal *MenuItem, p Profile, slotLabel string) url.Values {
	deliver := slotLabel
	if len(deliver) > 5 {
		deliver = deliver[:5]
	}
	aid := meal.ArticleID

	form := url.Values{}
	form.Set("client[einrichtung]", mensaName)
	form.Set("client[einrichtung_val]", strconv.Itoa(mensaID))
	form.Set("client[vorname]", p.FirstName)
	form.Set("client[name]", p.LastName)
	form.Set("client[email]", p.Email)
	form.Set("client[nv2]", "true")
	form.Set("client[save_allowed]", "true")
	form.Set("client[deliver_time_val]", deliver)
	form.Set("client[date_iso]", day.IsoDate)
	form.Set("client[date_hr]", day.DisplayDate)

	form.Set(fmt.Sprintf("basket_positions[%s]", aid), "1")
	form.Set("basket_html", fmt.Sprintf(
		`<tbody><tr><th>Anzahl</th> <th>Artikel</th> <th class="zahl">Stückpreis</th></tr> `+
			`<tr><td>1x</td> <td aid_check="%s">%s</td> <td class="preis">%s</td></tr> `+
			`<tr class="trenner"><td></td> <td></td> <td></td></tr></tbody>`,
		aid, meal.RawTitle, meal.TogoPrice))

	bf := fmt.Sprintf("basket_full[%s]", aid)
	form.Set(bf+"[id]", aid)
	form.Set(bf+"[category]", meal.Category)
	form.Set(bf+"[title]", meal.RawTitle+" "+meal.RawDescription+" "+meal.KennzRest)
	form.Set(bf+"[preis1]", meal.Price1)
	form.Set(bf+"[preis2]", meal.Price2)
	form.Set(bf+"[preis3]", meal.Price3)
	form.Set(bf+"[anzahl]", "1")
	return form
}
