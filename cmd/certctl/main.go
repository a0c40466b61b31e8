package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/ruteri/certificate-registry/api/clients"
	"github.com/ruteri/certificate-registry/auth"
	"github.com/ruteri/certificate-registry/cmd/flags"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagTo = &cli.StringFlag{
	Name:     "to",
	Required: true,
	Usage:    "recipient address, 0x-prefixed hex",
}

var flagItemID = &cli.Uint64Flag{
	Name:     "item-id",
	Required: true,
	Usage:    "item identifier the certificate attests to",
}

var flagAdmin = &cli.StringFlag{
	Name:  "admin",
	Usage: "administrator address; defaults to the address of --key-file",
}

var flagForce = &cli.BoolFlag{
	Name:  "force",
	Usage: "overwrite an existing key file",
}

func main() {
	app := &cli.App{
		Name:  "certctl",
		Usage: "Manage certificates in a certificate registry",
		Flags: []cli.Flag{
			flags.RegistryURLFlag,
			flags.KeyFileFlag,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
			flags.LogServiceFlagFn("certctl"),
		},
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate a caller key and print its address",
				Flags: []cli.Flag{flagForce},
				Action: func(cCtx *cli.Context) error {
					path := cCtx.String(flags.KeyFileFlag.Name)
					if _, err := os.Stat(path); err == nil && !cCtx.Bool(flagForce.Name) {
						return fmt.Errorf("%s already exists, use --force to overwrite", path)
					}

					key, err := auth.GenerateKey()
					if err != nil {
						return err
					}
					if err := auth.SaveKeyFile(path, key); err != nil {
						return err
					}
					flags.SetupLogger(cCtx).Info("Key generated", "file", path, "address", auth.IdentityOf(key).String())
					fmt.Println(auth.IdentityOf(key))
					return nil
				},
			},
			{
				Name:  "address",
				Usage: "print the address of the caller key",
				Action: func(cCtx *cli.Context) error {
					key, err := auth.LoadKeyFile(cCtx.String(flags.KeyFileFlag.Name))
					if err != nil {
						return err
					}
					fmt.Println(auth.IdentityOf(key))
					return nil
				},
			},
			{
				Name:  "initialize",
				Usage: "record the registry administrator",
				Flags: []cli.Flag{flagAdmin},
				Action: func(cCtx *cli.Context) error {
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}

					admin, err := client.Caller()
					if err != nil {
						return err
					}
					if raw := cCtx.String(flagAdmin.Name); raw != "" {
						if admin, err = interfaces.NewIdentityFromHex(raw); err != nil {
							return err
						}
					}

					if err := client.Initialize(cCtx.Context, admin); err != nil {
						return err
					}
					return printJSON(map[string]string{"admin": admin.String()})
				},
			},
			{
				Name:  "mint",
				Usage: "issue a certificate (admin only)",
				Flags: []cli.Flag{flagTo, flagItemID},
				Action: func(cCtx *cli.Context) error {
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					to, itemID, err := recipientAndItem(cCtx)
					if err != nil {
						return err
					}
					if err := client.Mint(cCtx.Context, to, itemID); err != nil {
						return err
					}
					return showCertificate(cCtx, client, itemID)
				},
			},
			{
				Name:  "burn",
				Usage: "invalidate a certificate (admin or owner)",
				Flags: []cli.Flag{flagItemID},
				Action: func(cCtx *cli.Context) error {
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					itemID, err := itemIDArg(cCtx)
					if err != nil {
						return err
					}
					if err := client.Burn(cCtx.Context, itemID); err != nil {
						return err
					}
					return showCertificate(cCtx, client, itemID)
				},
			},
			{
				Name:  "transfer",
				Usage: "hand a certificate to a new owner (owner only)",
				Flags: []cli.Flag{flagTo, flagItemID},
				Action: func(cCtx *cli.Context) error {
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					to, itemID, err := recipientAndItem(cCtx)
					if err != nil {
						return err
					}
					if err := client.Transfer(cCtx.Context, to, itemID); err != nil {
						return err
					}
					return showCertificate(cCtx, client, itemID)
				},
			},
			{
				Name:  "is-valid",
				Usage: "check whether a live certificate exists for an item; exits 1 if not",
				Flags: []cli.Flag{flagItemID},
				Action: func(cCtx *cli.Context) error {
					itemID, err := itemIDArg(cCtx)
					if err != nil {
						return err
					}
					valid, err := readClient(cCtx).IsValid(cCtx.Context, itemID)
					if err != nil {
						return err
					}
					if err := printJSON(map[string]any{"item_id": itemID, "valid": valid}); err != nil {
						return err
					}
					if !valid {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the stored certificate for an item",
				Flags: []cli.Flag{flagItemID},
				Action: func(cCtx *cli.Context) error {
					itemID, err := itemIDArg(cCtx)
					if err != nil {
						return err
					}
					return showCertificate(cCtx, readClient(cCtx), itemID)
				},
			},
			{
				Name:  "admin",
				Usage: "print the registry administrator",
				Action: func(cCtx *cli.Context) error {
					admin, err := readClient(cCtx).Admin(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"admin": admin.String()})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func signingClient(cCtx *cli.Context) (*clients.RegistryClient, error) {
	key, err := auth.LoadKeyFile(cCtx.String(flags.KeyFileFlag.Name))
	if err != nil {
		return nil, err
	}
	return clients.NewRegistryClient(cCtx.String(flags.RegistryURLFlag.Name), key), nil
}

func readClient(cCtx *cli.Context) *clients.RegistryClient {
	return clients.NewRegistryClient(cCtx.String(flags.RegistryURLFlag.Name), nil)
}

func itemIDArg(cCtx *cli.Context) (interfaces.ItemID, error) {
	raw := cCtx.Uint64(flagItemID.Name)
	if raw > uint64(^uint32(0)) {
		return 0, errors.New("item-id must fit in 32 bits, got " + strconv.FormatUint(raw, 10))
	}
	return interfaces.ItemID(raw), nil
}

func recipientAndItem(cCtx *cli.Context) (interfaces.Identity, interfaces.ItemID, error) {
	to, err := interfaces.NewIdentityFromHex(cCtx.String(flagTo.Name))
	if err != nil {
		return interfaces.Identity{}, 0, err
	}
	itemID, err := itemIDArg(cCtx)
	return to, itemID, err
}

func showCertificate(cCtx *cli.Context, client *clients.RegistryClient, itemID interfaces.ItemID) error {
	cert, err := client.Certificate(cCtx.Context, itemID)
	if err != nil {
		return err
	}
	return printJSON(cert)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
