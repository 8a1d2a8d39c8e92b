package store

import (
	"context"

	"gorsi/lib/rsi/graphql"
)

const upgradesQuery = `
query initShipUpgrade {
  ships {
    id
    name
    medias {
      productThumbMediumAndSmall
      slideShow
    }
    manufacturer {
      id
      name
    }
    focus
    type
    flyableStatus
    owned
    msrp
    link
    skus {
      id
      title
      available
      price
      body
    }
  }
  manufacturers {
    id
    name
  }
  app {
    version
    env
    cookieName
    sentryDSN
    pricing {
      currencyCode
      currencySymbol
      exchangeRate
      taxRate
      isTaxInclusive
    }
    mode
    isAnonymous
    buyback {
      credit
    }
  }
}
`

type Manufacturer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Medias struct {
	ProductThumbMediumAndSmall string `json:"productThumbMediumAndSmall"`
	SlideShow                  string `json:"slideShow"`
}

type ShipSKU struct {
	ID        int     `json:"id"`
	Title     string  `json:"title"`
	Available bool    `json:"available"`
	Price     float64 `json:"price"`
	Body      string  `json:"body"`
}

// Ship is a ship of the upgrade catalog, Msrp is in cents.
type Ship struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	Medias        Medias       `json:"medias"`
	Manufacturer  Manufacturer `json:"manufacturer"`
	Focus         string       `json:"focus"`
	Type          string       `json:"type"`
	FlyableStatus string       `json:"flyableStatus"`
	Owned         bool         `json:"owned"`
	Msrp          float64      `json:"msrp"`
	Link          string       `json:"link"`
	Skus          []ShipSKU    `json:"skus"`
}

type upgradesData struct {
	Ships []Ship `json:"ships"`
}

const upgradesKey = "ships"

// ShipUpgrades returns the ship upgrade catalog keyed by ship id, the catalog is
// cached for the store's cache ttl.
func (s *Store) ShipUpgrades(ctx context.Context) (map[int]Ship, error) {
	return s.upgrades.GetOrCompute(upgradesKey, func() (map[int]Ship, error) {
		return s.fetchShipUpgrades(ctx)
	})
}

func (s *Store) fetchShipUpgrades(ctx context.Context) (map[int]Ship, error) {
	err := s.sess.UpdateSessionTokens(ctx, s.opts.ContextTokenEndpoint)
	if err != nil {
		s.tel.ReportBroken(report_store_upgrades, err)
		return nil, err
	}

	data, err := graphql.Query[struct{}, upgradesData](
		ctx,
		s.sess,
		s.opts.UpgradeEndpoint,
		"initShipUpgrade",
		upgradesQuery,
		struct{}{},
	)
	if err != nil {
		s.tel.ReportBroken(report_store_upgrades, err)
		return nil, err
	}

	ships := make(map[int]Ship, len(data.Ships))
	for _, ship := range data.Ships {
		ships[ship.ID] = ship
	}
	s.tel.ReportCount(report_store_upgrades, int64(len(ships)))
	return ships, nil
}

// ClearCache drops the cached upgrade catalog.
func (s *Store) ClearCache() {
	s.upgrades.Clear()
}
