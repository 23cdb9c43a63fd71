package pricing

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Catalog maps every (plan, cycle) pair to a base price in paise. A catalog
// is immutable once built; updates go through Calculator.Reload.
type Catalog struct {
	prices map[Plan]map[BillingCycle]Paise
}

// DefaultCatalog returns the built-in MediTrack Pro price list (INR)
func DefaultCatalog() *Catalog {
	return &Catalog{prices: map[Plan]map[BillingCycle]Paise{
		PlanBasic: {
			CycleMonthly: FromRupees(4999),
			CycleYearly:  FromRupees(47990),
		},
		PlanProfessional: {
			CycleMonthly: FromRupees(9999),
			CycleYearly:  FromRupees(95990),
		},
		PlanEnterprise: {
			CycleMonthly: FromRupees(19999),
			CycleYearly:  FromRupees(191990),
		},
	}}
}

// Price returns the base price for a plan and cycle
func (c *Catalog) Price(plan Plan, cycle BillingCycle) (Paise, error) {
	cycles, ok := c.prices[plan]
	if !ok {
		return 0, fmt.Errorf("plan %q not in catalog", plan)
	}
	price, ok := cycles[cycle]
	if !ok {
		return 0, fmt.Errorf("cycle %q not in catalog for plan %q", cycle, plan)
	}
	return price, nil
}

// catalogFile is the YAML shape of a catalog override file. Prices are in
// whole rupees, matching how the price list is published.
type catalogFile struct {
	Plans map[string]map[string]int64 `yaml:"plans"`
}

// LoadCatalog reads a catalog override from a YAML file. The file must cover
// every plan/cycle pair: the calculator is total over its catalog, so a
// partial override is rejected rather than silently falling back.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	catalog := &Catalog{prices: make(map[Plan]map[BillingCycle]Paise)}
	for planName, cycles := range file.Plans {
		plan := Plan(planName)
		if !plan.Valid() {
			return nil, fmt.Errorf("unknown plan in catalog file: %q", planName)
		}
		catalog.prices[plan] = make(map[BillingCycle]Paise)
		for cycleName, rupees := range cycles {
			cycle := BillingCycle(cycleName)
			if !cycle.Valid() {
				return nil, fmt.Errorf("unknown cycle in catalog file: %q", cycleName)
			}
			if rupees <= 0 {
				return nil, fmt.Errorf("non-positive price for %s/%s", planName, cycleName)
			}
			catalog.prices[plan][cycle] = FromRupees(rupees)
		}
	}

	for _, plan := range []Plan{PlanBasic, PlanProfessional, PlanEnterprise} {
		for _, cycle := range []BillingCycle{CycleMonthly, CycleYearly} {
			if _, err := catalog.Price(plan, cycle); err != nil {
				return nil, fmt.Errorf("incomplete catalog file: %w", err)
			}
		}
	}

	return catalog, nil
}

// CatalogWatcher hot-reloads a catalog file into a calculator when the file
// changes. Invalid updates are reported through onError and the previous
// catalog stays active.
type CatalogWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchCatalog starts watching path and pushes successfully parsed catalogs
// into calc. onError may be nil.
func WatchCatalog(path string, calc *Calculator, onError func(error)) (*CatalogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch catalog file: %w", err)
	}

	w := &CatalogWatcher{
		watcher: watcher,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				catalog, err := LoadCatalog(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				calc.Reload(catalog)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return w, nil
}

// Close stops the watcher
func (w *CatalogWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
